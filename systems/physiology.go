package systems

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/plantfate/climate"
	"github.com/pthm-cable/plantfate/components"
	"github.com/pthm-cable/plantfate/geometry"
	"github.com/pthm-cable/plantfate/population"
)

const (
	secondsPerYear = 365.2425 * 86400
	// mol C to kg biomass, at 12 g C per mol and 50% carbon content
	molCToBiomass = 0.024
	// mol H2O to kg
	molH2OToKg = 0.018
	patm       = 101325.0
)

// PhysiologyParams configures the light-use-efficiency photosynthesis model.
type PhysiologyParams struct {
	KPhio       float64 `yaml:"kphio"`        // quantum yield (mol C / mol photons)
	KLight      float64 `yaml:"k_light"`      // canopy light extinction coefficient
	Chi         float64 `yaml:"chi"`          // ci/ca ratio
	GammaStar   float64 `yaml:"gamma_star"`   // CO2 compensation point (ppm)
	TOpt        float64 `yaml:"t_opt"`        // optimal temperature (degC)
	TWidth      float64 `yaml:"t_width"`      // temperature response width (degC)
	DayFraction float64 `yaml:"day_fraction"` // fraction of the year with light
	SeedMass    float64 `yaml:"seed_mass"`    // kg per seed
	Survival    float64 `yaml:"seedling_survival"`
}

// DefaultPhysiology returns the calibrated defaults.
func DefaultPhysiology() PhysiologyParams {
	return PhysiologyParams{
		KPhio:       0.087,
		KLight:      0.5,
		Chi:         0.7,
		GammaStar:   40,
		TOpt:        25,
		TWidth:      15,
		DayFraction: 0.5,
		SeedMass:    0.01,
		Survival:    0.01,
	}
}

// MortalityParams sets the instantaneous mortality rate
// background + growth*exp(-growthScale*rgr) + carbon*deficit/biomass.
type MortalityParams struct {
	Background  float64 `yaml:"background"`
	Growth      float64 `yaml:"growth"`
	GrowthScale float64 `yaml:"growth_scale"`
	Carbon      float64 `yaml:"carbon"`
}

// DefaultMortality returns the calibrated defaults.
func DefaultMortality() MortalityParams {
	return MortalityParams{
		Background:  0.01,
		Growth:      0.05,
		GrowthScale: 20,
		Carbon:      1,
	}
}

// PhysiologySystem computes assimilation, allocation, mortality and
// fecundity for every cohort.
type PhysiologySystem struct {
	filter    ecs.Filter3[components.Plant, components.Density, components.Rates]
	community *population.Community
	par       PhysiologyParams
	mort      MortalityParams

	pool *workPool
	refs []cohortRef
}

// NewPhysiologySystem creates a physiology system for the community.
func NewPhysiologySystem(c *population.Community, par PhysiologyParams, mort MortalityParams) *PhysiologySystem {
	return &PhysiologySystem{
		filter:    *ecs.NewFilter3[components.Plant, components.Density, components.Rates](c.World()),
		community: c,
		par:       par,
		mort:      mort,
		pool:      newWorkPool(),
	}
}

// AssimilationPerArea returns gross assimilation per unit crown area
// (kg biomass m-2 yr-1) for a crown with the given LAI and openness.
func (s *PhysiologySystem) AssimilationPerArea(clim climate.State, lai, openness, p50 float64) float64 {
	photons := clim.PPFD * 1e-6 * secondsPerYear * s.par.DayFraction * openness
	absorbed := 1 - math.Exp(-s.par.KLight*lai)
	return s.par.KPhio * photons * absorbed * s.co2Factor(clim.CO2) * s.tempFactor(clim.Temp) *
		waterFactor(clim.SWP, p50) * molCToBiomass
}

func (s *PhysiologySystem) co2Factor(ca float64) float64 {
	gs := s.par.GammaStar
	return math.Max(0, (ca-gs)/(ca+2*gs))
}

func (s *PhysiologySystem) tempFactor(tc float64) float64 {
	d := (tc - s.par.TOpt) / s.par.TWidth
	return math.Exp(-d * d)
}

func waterFactor(swp, p50 float64) float64 {
	if swp >= 0 || p50 >= 0 {
		return 1
	}
	return 1 / (1 + math.Pow(swp/p50, 3))
}

// Update recomputes the rates of every cohort under clim. The canopy system
// must have assigned openness first. Cohorts are independent given the
// canopy, so large communities are split across workers.
func (s *PhysiologySystem) Update(clim climate.State) {
	s.refs = s.refs[:0]
	query := s.filter.Query()
	for query.Next() {
		plant, _, rates := query.Get()
		s.refs = append(s.refs, cohortRef{plant: plant, rates: rates})
	}

	s.pool.run(len(s.refs), func(start, end int) {
		for _, ref := range s.refs[start:end] {
			s.updateCohort(clim, ref.plant, ref.rates)
		}
	})
}

func (s *PhysiologySystem) updateCohort(clim climate.State, plant *components.Plant, rates *components.Rates) {
	par := s.community.Params()
	spTraits, _ := s.community.Traits(plant.Species)
	tr := &spTraits
	g := &plant.Geometry

	aPerArea := s.AssimilationPerArea(clim, g.LAI, rates.Openness, tr.P50Xylem)
	gpp := aPerArea * g.CrownArea
	al := g.Allocate(gpp, tr, par)

	rates.GPP = gpp
	rates.RLeaf, rates.RRoot, rates.RStem = al.RespLeaf, al.RespRoot, al.RespStem
	rates.NPP = gpp - al.Respiration
	rates.Allocation = al
	s.water(clim, aPerArea, g, rates)

	rates.RGR = 0
	if g.Diameter > 0 {
		rates.RGR = al.DSize / g.Diameter
	}
	rates.Mortality = s.mortality(rates.RGR, al.Deficit, g.TotalMass(tr))
	rates.Fecundity = al.Reproduction / s.par.SeedMass
}

// water derives stomatal conductance and transpiration from assimilation at
// a fixed ci/ca ratio.
func (s *PhysiologySystem) water(clim climate.State, aPerArea float64, g *geometry.PlantGeometry, rates *components.Rates) {
	rates.GsAvg, rates.Trans = 0, 0
	daySeconds := secondsPerYear * s.par.DayFraction
	if aPerArea <= 0 || clim.CO2 <= 0 || daySeconds <= 0 {
		return
	}
	aMol := aPerArea / molCToBiomass / daySeconds // mol C m-2 s-1
	gsCO2 := aMol / (clim.CO2 * 1e-6 * (1 - s.par.Chi))
	rates.GsAvg = 1.6 * gsCO2
	e := rates.GsAvg * clim.VPD / patm // mol H2O m-2 s-1
	rates.Trans = e * g.CrownArea * daySeconds * molH2OToKg
}

func (s *PhysiologySystem) mortality(rgr, deficit, biomass float64) float64 {
	m := s.mort.Background + s.mort.Growth*math.Exp(-s.mort.GrowthScale*rgr)
	if biomass > 0 {
		m += s.mort.Carbon * deficit / biomass
	}
	return m
}

// Newborns returns the recruitment flux of species k: seed output of all
// cohorts times seedling survival, per unit ground area per year.
func (s *PhysiologySystem) Newborns(k int) float64 {
	sp := s.community.Species(k)
	total := 0.0
	for i := 0; i < sp.Len(); i++ {
		_, d, r := s.community.Cohort(k, i)
		total += d.U * r.Fecundity
	}
	return total * s.par.Survival
}
