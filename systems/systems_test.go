package systems

import (
	"math"
	"testing"

	"github.com/pthm-cable/plantfate/climate"
	"github.com/pthm-cable/plantfate/geometry"
	"github.com/pthm-cable/plantfate/population"
	"github.com/pthm-cable/plantfate/traits"
)

func testCommunity(t *testing.T) *population.Community {
	t.Helper()
	par := geometry.DefaultParams()
	tr := traits.Traits{Name: "a", LMA: 0.12, WoodDensity: 600, HMat: 20, P50Xylem: -2}.Coordinate(traits.Coordination{
		A: par.A, FHMat: par.FHMat, LMARef: par.LMARef, LLExponent: par.LLExponent, DefaultZeta: par.DefaultZeta,
	})
	table := traits.NewTable()
	if _, err := table.Add(tr); err != nil {
		t.Fatal(err)
	}
	table.Freeze()
	c, err := population.New(table, &par)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddSpecies(0, 0.1, 1); err != nil {
		t.Fatal(err)
	}
	c.AddCohort(0, 0.02, 5)
	c.AddCohort(0, 0.005, 20)
	return c
}

func TestCanopyLayers(t *testing.T) {
	c := testCommunity(t)
	canopy := NewCanopySystem(c.World(), 0.5)
	canopy.Update()

	total := canopy.CrownAreaAbove(0)
	if len(canopy.ZStar) != int(math.Floor(total)) {
		t.Fatalf("expected %d layer boundaries for total crown area %v, got %d", int(total), total, len(canopy.ZStar))
	}
	if len(canopy.ZStar) == 0 {
		t.Fatalf("test community should close at least one layer (total %v)", total)
	}
	for l, z := range canopy.ZStar {
		if got := canopy.CrownAreaAbove(z); math.Abs(got-float64(l+1)) > 1e-6 {
			t.Errorf("layer %d: crown area above z*=%v is %v", l+1, z, got)
		}
		if l > 0 && z > canopy.ZStar[l-1] {
			t.Errorf("z* not descending: %v", canopy.ZStar)
		}
	}
	if canopy.Openness[0] != 1 {
		t.Errorf("top layer openness %v, want 1", canopy.Openness[0])
	}
	for l := 1; l < len(canopy.Openness); l++ {
		if canopy.Openness[l] >= canopy.Openness[l-1] {
			t.Errorf("openness not decreasing with depth: %v", canopy.Openness)
		}
	}

	// The founder is the tallest cohort and sits in the top layer.
	_, _, r := c.Cohort(0, 2)
	if r.Layer != 0 || r.Openness != 1 {
		t.Errorf("tallest cohort in layer %d with openness %v", r.Layer, r.Openness)
	}
	_, _, r = c.Cohort(0, 0)
	if r.Layer == 0 {
		t.Errorf("smallest cohort should be shaded")
	}
}

func TestPhysiologyRates(t *testing.T) {
	c := testCommunity(t)
	canopy := NewCanopySystem(c.World(), 0.5)
	phys := NewPhysiologySystem(c, DefaultPhysiology(), DefaultMortality())

	canopy.Update()
	phys.Update(climate.Default())

	p, _, r := c.Cohort(0, 2)
	if r.GPP <= 0 || r.Trans <= 0 || r.GsAvg <= 0 {
		t.Errorf("expected positive fluxes, got %+v", r)
	}
	if math.Abs(r.NPP-(r.GPP-r.Respiration())) > 1e-12 {
		t.Errorf("NPP %v != GPP - respiration %v", r.NPP, r.GPP-r.Respiration())
	}
	if r.Allocation.DSize <= 0 || math.Abs(r.RGR-r.Allocation.DSize/p.Geometry.Diameter) > 1e-12 {
		t.Errorf("unexpected growth rates: dsize %v rgr %v", r.Allocation.DSize, r.RGR)
	}
	if r.Mortality < DefaultMortality().Background {
		t.Errorf("mortality %v below background", r.Mortality)
	}
}

func TestPhysiologyDarkness(t *testing.T) {
	c := testCommunity(t)
	canopy := NewCanopySystem(c.World(), 0.5)
	phys := NewPhysiologySystem(c, DefaultPhysiology(), DefaultMortality())

	dark := climate.Default()
	dark.PPFD = 0
	canopy.Update()
	phys.Update(dark)

	_, _, r := c.Cohort(0, 1)
	if r.GPP != 0 || r.Allocation.Deficit <= 0 || r.Fecundity != 0 {
		t.Errorf("expected a carbon deficit in darkness, got %+v", r.Allocation)
	}
	m := DefaultMortality()
	if r.Mortality <= m.Background+m.Growth {
		t.Errorf("carbon starvation should raise mortality, got %v", r.Mortality)
	}
	if phys.Newborns(0) != 0 {
		t.Errorf("expected no newborns in darkness")
	}
}

func TestEnvironmentFactors(t *testing.T) {
	phys := &PhysiologySystem{par: DefaultPhysiology()}
	if f := phys.tempFactor(25); f != 1 {
		t.Errorf("temperature factor at optimum %v", f)
	}
	if f := phys.co2Factor(30); f != 0 {
		t.Errorf("co2 below compensation point should give 0, got %v", f)
	}
	if f := waterFactor(-2, -2); math.Abs(f-0.5) > 1e-12 {
		t.Errorf("water factor at p50 should be 0.5, got %v", f)
	}
	if waterFactor(-1, -2) <= waterFactor(-3, -2) {
		t.Errorf("water factor should fall with drier soil")
	}
}

func TestNewbornsScaleWithDensity(t *testing.T) {
	c := testCommunity(t)
	canopy := NewCanopySystem(c.World(), 0.5)
	phys := NewPhysiologySystem(c, DefaultPhysiology(), DefaultMortality())

	canopy.Update()
	phys.Update(climate.Default())

	want := 0.0
	for i := 0; i < c.Species(0).Len(); i++ {
		_, d, r := c.Cohort(0, i)
		want += d.U * r.Fecundity
	}
	want *= DefaultPhysiology().Survival
	if math.Abs(phys.Newborns(0)-want) > 1e-12 {
		t.Errorf("newborns %v, want %v", phys.Newborns(0), want)
	}
}

func TestWorkPoolCoversRange(t *testing.T) {
	for _, n := range []int{0, 10, parallelThreshold, 1000} {
		hits := make([]int, n)
		p := &workPool{numWorkers: 4}
		p.run(n, func(start, end int) {
			for i := start; i < end; i++ {
				hits[i]++
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, h)
			}
		}
	}
}

func TestPhysiologyParallelMatchesSerial(t *testing.T) {
	c := testCommunity(t)
	for i := 0; i < 2*parallelThreshold; i++ {
		c.AddCohort(0, 0.005+0.0001*float64(i), 1)
	}
	canopy := NewCanopySystem(c.World(), 0.5)
	canopy.Update()

	phys := NewPhysiologySystem(c, DefaultPhysiology(), DefaultMortality())
	phys.pool = &workPool{numWorkers: 1}
	phys.Update(climate.Default())
	n := c.Species(0).Len()
	want := make([]float64, n)
	for i := range n {
		_, _, r := c.Cohort(0, i)
		want[i] = r.NPP
	}

	phys.pool = &workPool{numWorkers: 4}
	phys.Update(climate.Default())
	for i := range n {
		if _, _, r := c.Cohort(0, i); r.NPP != want[i] {
			t.Fatalf("cohort %d: parallel NPP %v, serial %v", i, r.NPP, want[i])
		}
	}
}
