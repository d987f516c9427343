package population

import (
	"errors"
	"testing"

	"github.com/pthm-cable/plantfate/geometry"
	"github.com/pthm-cable/plantfate/simerr"
	"github.com/pthm-cable/plantfate/traits"
)

func newCommunity(t *testing.T, nSpecies int) *Community {
	t.Helper()
	par := geometry.DefaultParams()
	coord := traits.Coordination{A: par.A, FHMat: par.FHMat, LMARef: par.LMARef, LLExponent: par.LLExponent, DefaultZeta: par.DefaultZeta}

	table := traits.NewTable()
	for i := 0; i < nSpecies; i++ {
		tr := traits.Traits{
			Name:        string(rune('a' + i)),
			LMA:         0.1 + 0.02*float64(i),
			WoodDensity: 600,
			HMat:        15 + 5*float64(i),
			P50Xylem:    -2,
		}.Coordinate(coord)
		if _, err := table.Add(tr); err != nil {
			t.Fatal(err)
		}
	}
	table.Freeze()

	c, err := New(table, &par)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < nSpecies; i++ {
		if _, err := c.AddSpecies(traits.ID(i), 0.1, 1); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func TestNewRequiresFrozenTable(t *testing.T) {
	par := geometry.DefaultParams()
	if _, err := New(traits.NewTable(), &par); !errors.Is(err, simerr.ErrPrecondition) {
		t.Errorf("expected ErrPrecondition, got %v", err)
	}
}

func TestAddSpeciesErrors(t *testing.T) {
	c := newCommunity(t, 1)
	if _, err := c.AddSpecies(0, 0.1, 1); !errors.Is(err, simerr.ErrConfig) {
		t.Errorf("duplicate species: expected ErrConfig, got %v", err)
	}
	if _, err := c.AddSpecies(5, 0.1, 1); !errors.Is(err, simerr.ErrConfig) {
		t.Errorf("unknown species: expected ErrConfig, got %v", err)
	}
}

func TestAddCohortPrepends(t *testing.T) {
	c := newCommunity(t, 1)
	c.AddCohort(0, 0.01, 0.5)
	c.AddCohort(0, 0.001, 0.2)

	if c.Species(0).Len() != 3 {
		t.Fatalf("expected 3 cohorts, got %d", c.Species(0).Len())
	}
	wantSizes := []float64{0.001, 0.01, 0.1}
	for i, want := range wantSizes {
		p, _, _ := c.Cohort(0, i)
		if p.Geometry.Diameter != want {
			t.Errorf("cohort %d: expected size %v, got %v", i, want, p.Geometry.Diameter)
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	c := newCommunity(t, 2)
	c.AddCohort(1, 0.02, 0.3)

	v := c.AppendState(nil)
	if len(v) != c.StateLen() || len(v) != 3*CohortWidth {
		t.Fatalf("unexpected state length %d", len(v))
	}
	l := c.Species(1).Layout()
	if l.Offset != CohortWidth || l.Count != 2 {
		t.Errorf("unexpected layout %+v", l)
	}

	cs := l.Cohort(v, 0)
	if cs[SlotSize] != 0.02 || cs[SlotDensity] != 0.3 {
		t.Errorf("boundary cohort view %+v", *cs)
	}

	cs[SlotDensity] = 7
	cs[SlotSeedPool] = 2
	if err := c.LoadState(v); err != nil {
		t.Fatal(err)
	}
	p, d, _ := c.Cohort(1, 0)
	if d.U != 7 || p.SeedPool != 2 {
		t.Errorf("write through view not loaded: u=%v seeds=%v", d.U, p.SeedPool)
	}

	again := c.AppendState(nil)
	for i := range v {
		if v[i] != again[i] {
			t.Fatalf("slot %d changed across load/append: %v vs %v", i, v[i], again[i])
		}
	}
}

func TestLoadStateMismatch(t *testing.T) {
	c := newCommunity(t, 1)
	v := c.AppendState(nil)
	if err := c.LoadState(append(v, 0)); !errors.Is(err, simerr.ErrConsistency) {
		t.Errorf("expected ErrConsistency, got %v", err)
	}
	if err := c.WriteDerivatives(make([]float64, 1)); !errors.Is(err, simerr.ErrConsistency) {
		t.Errorf("expected ErrConsistency, got %v", err)
	}
}

func TestWriteDerivatives(t *testing.T) {
	c := newCommunity(t, 1)
	_, d, r := c.Cohort(0, 0)
	d.U = 2
	r.Mortality = 0.1
	r.Fecundity = 5
	r.Allocation.DSize = 0.01

	c.AppendState(nil)
	dv := make([]float64, c.StateLen())
	if err := c.WriteDerivatives(dv); err != nil {
		t.Fatal(err)
	}
	if dv[SlotSize] != 0.01 || dv[SlotDensity] != -0.2 || dv[SlotSeedPool] != 5 {
		t.Errorf("unexpected derivatives %v", dv)
	}
}

func TestPruneKeepsBoundary(t *testing.T) {
	c := newCommunity(t, 1)
	c.AddCohort(0, 0.05, 1e-9)
	c.AddCohort(0, 0.01, 1e-9)

	removed := c.Prune(1e-6)
	if removed != 1 {
		t.Errorf("expected 1 cohort removed, got %d", removed)
	}
	if c.Species(0).Len() != 2 {
		t.Fatalf("expected 2 cohorts left, got %d", c.Species(0).Len())
	}
	p, _, _ := c.Cohort(0, 0)
	if p.Geometry.Diameter != 0.01 {
		t.Errorf("boundary cohort was pruned")
	}
}

func TestClearPatch(t *testing.T) {
	c := newCommunity(t, 2)
	for k := 0; k < 2; k++ {
		c.AddCohort(k, 0.05, 0.4)
		c.AddCohort(k, 0.01, 0.8)
		for i := 0; i < 3; i++ {
			p, _, _ := c.Cohort(k, i)
			p.Geometry.SetLAI(2.7)
		}
	}

	c.ClearPatch()

	lai0 := c.Params().LAI0
	for k := 0; k < 2; k++ {
		p, d, _ := c.Cohort(k, 0)
		if d.U != 0.8 || p.Geometry.CoarseRootMass == 0 || p.Geometry.LAI != 2.7 {
			t.Errorf("species %d: boundary cohort was disturbed", k)
		}
		for i := 1; i < 3; i++ {
			p, d, _ := c.Cohort(k, i)
			if d.U != 0 {
				t.Errorf("species %d cohort %d: density %v, want 0", k, i, d.U)
			}
			if p.Geometry.CoarseRootMass != 0 || p.Geometry.RootingDepth != 0 {
				t.Errorf("species %d cohort %d: coarse roots not cleared", k, i)
			}
			if p.Geometry.LAI != lai0 {
				t.Errorf("species %d cohort %d: LAI %v, want %v", k, i, p.Geometry.LAI, lai0)
			}
		}
	}
}

func TestDisturbanceSchedule(t *testing.T) {
	c := newCommunity(t, 1)
	c.AddCohort(0, 0.01, 1)

	off := NewDisturbance(DisturbanceConfig{Enabled: false, First: 0}, 1)
	if off.Apply(10, c) {
		t.Errorf("disabled schedule cleared the patch")
	}

	d := NewDisturbance(DisturbanceConfig{Enabled: true, First: 50, Mean: 100, Jitter: 50}, 1)
	if d.Apply(49, c) {
		t.Errorf("cleared before the first event")
	}
	if !d.Apply(50, c) {
		t.Fatalf("expected clearing at the first event")
	}
	if d.Next() < 100 || d.Next() > 200 {
		t.Errorf("next clearing %v outside [100, 200]", d.Next())
	}
	if _, dens, _ := c.Cohort(0, 1); dens.U != 0 {
		t.Errorf("clearing did not reset density")
	}
}

func TestDisturbanceRestoreReplaysSchedule(t *testing.T) {
	c := newCommunity(t, 1)
	cfg := DisturbanceConfig{Enabled: true, First: 0, Mean: 100, Jitter: 50}

	a := NewDisturbance(cfg, 7)
	a.Apply(0, c)
	a.Apply(a.Next(), c)

	b := NewDisturbance(cfg, 7)
	b.Restore(a.Next(), a.Draws())
	t0 := a.Next()
	a.Apply(t0, c)
	b.Apply(t0, c)
	if a.Next() != b.Next() {
		t.Errorf("restored schedule diverged: %v vs %v", a.Next(), b.Next())
	}
}

func TestReplaceCohortsRoundTrip(t *testing.T) {
	c := newCommunity(t, 2)
	c.AddCohort(1, 0.02, 0.3)
	c.AddCohort(1, 0.005, 0.7)
	saved := c.CohortStates(1)

	c.AddCohort(1, 0.001, 5)
	c.RemoveCohort(1, 3)
	c.ReplaceCohorts(1, saved)

	got := c.CohortStates(1)
	if len(got) != len(saved) {
		t.Fatalf("expected %d cohorts, got %d", len(saved), len(got))
	}
	for i := range saved {
		if got[i] != saved[i] {
			t.Errorf("cohort %d: got %v, want %v", i, got[i], saved[i])
		}
	}
	if c.Species(0).Len() != 1 {
		t.Errorf("other species touched")
	}
}

func TestCheckConsistency(t *testing.T) {
	c := newCommunity(t, 2)
	c.AddCohort(1, 0.02, 3)
	if err := c.CheckConsistency(); err != nil {
		t.Fatalf("fresh community inconsistent: %v", err)
	}

	p, _, _ := c.Cohort(1, 1)
	p.Geometry.SapwoodMassODE *= 1.5
	if err := c.CheckConsistency(); !errors.Is(err, simerr.ErrConsistency) {
		t.Errorf("expected ErrConsistency, got %v", err)
	}
}

func TestTraitsAreCopies(t *testing.T) {
	c := newCommunity(t, 1)
	tr := c.Species(0).Traits()
	tr.HMat = 99

	got, ok := c.Traits(c.Species(0).ID)
	if !ok {
		t.Fatal("species not found by ID")
	}
	if got.HMat == 99 || c.Species(0).Traits().HMat == 99 {
		t.Error("traits changed through a returned copy")
	}
	if _, ok := c.Traits(traits.ID(7)); ok {
		t.Error("expected unknown ID to be reported missing")
	}
}
