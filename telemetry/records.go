package telemetry

import (
	"math"

	"github.com/pthm-cable/plantfate/population"
	"github.com/pthm-cable/plantfate/systems"
)

const (
	daysPerYear = 365.2425
	// kg biomass to g C at 50% carbon content
	kgBiomassToGC = 500.0
)

// FluxRecord is one row of fluxes.csv. Fluxes are gC m-2 d-1, pools gC m-2,
// ET mm d-1 and GS mol m-2 s-1.
type FluxRecord struct {
	Year int     `csv:"YEAR"`
	DOY  int     `csv:"DOY"`
	GPP  float64 `csv:"GPP"`
	NPP  float64 `csv:"NPP"`
	RAU  float64 `csv:"RAU"`
	CL   float64 `csv:"CL"`
	CW   float64 `csv:"CW"`
	CCR  float64 `csv:"CCR"`
	CFR  float64 `csv:"CFR"`
	CR   float64 `csv:"CR"`
	GS   float64 `csv:"GS"`
	ET   float64 `csv:"ET"`
	LAI  float64 `csv:"LAI"`
}

// StructureRecord is one row of structure.csv. Each report has a community
// row with PID Missing followed by one row per species. In the community row
// MH is the community mean of hmat and WD, SLA and P50 are community means,
// all weighted by individuals. Undefined values are Missing.
type StructureRecord struct {
	Year int     `csv:"YEAR"`
	PID  int     `csv:"PID"`
	DE   float64 `csv:"DE"`  // individuals m-2
	OC   float64 `csv:"OC"`  // crown area in the top layer (m2 m-2)
	PH   float64 `csv:"PH"`  // mean height (m)
	MH   float64 `csv:"MH"`  // max height (m)
	CA   float64 `csv:"CA"`  // crown area (m2 m-2)
	BA   float64 `csv:"BA"`  // basal area (m2 m-2)
	TB   float64 `csv:"TB"`  // total biomass (kg m-2)
	WD   float64 `csv:"WD"`  // wood density (kg m-3)
	MO   float64 `csv:"MO"`  // mean mortality rate (yr-1)
	SLA  float64 `csv:"SLA"` // specific leaf area (m2 kg-1)
	P50  float64 `csv:"P50"` // MPa
}

// SpeciesRecord is one row of species.csv.
type SpeciesRecord struct {
	T         float64 `csv:"t"`
	Species   string  `csv:"species"`
	NInd      float64 `csv:"n_ind"`
	Biomass   float64 `csv:"biomass"`
	BasalArea float64 `csv:"basal_area"`
	Seeds     float64 `csv:"seeds"`
	BirthFlux float64 `csv:"birth_flux"`
}

// CanopyRecord is one row of canopy.csv.
type CanopyRecord struct {
	T        float64 `csv:"t"`
	Layer    int     `csv:"layer"`
	ZStar    float64 `csv:"z_star"`
	Openness float64 `csv:"openness"`
}

// CohortRecord is one row of cohorts.csv.
type CohortRecord struct {
	T          float64 `csv:"t"`
	Species    int     `csv:"species"`
	Cohort     int     `csv:"cohort"`
	Size       float64 `csv:"size"`
	Density    float64 `csv:"density"`
	Height     float64 `csv:"height"`
	LAI        float64 `csv:"lai"`
	Mortality  float64 `csv:"mortality"`
	SeedPool   float64 `csv:"seed_pool"`
	RGR        float64 `csv:"rgr"`
	GPPPerArea float64 `csv:"gpp_per_area"`
}

// CalendarDate converts simulation time to a calendar year and day of year.
func CalendarDate(t float64, refYear int) (year, doy int) {
	whole := math.Floor(t)
	return refYear + int(whole), int((t-whole)*daysPerYear) + 1
}

// NewFluxRecord converts community stats to a fluxes.csv row.
func NewFluxRecord(s CommunityStats, refYear int) FluxRecord {
	year, doy := CalendarDate(s.T, refYear)
	perDay := kgBiomassToGC / daysPerYear
	return FluxRecord{
		Year: year,
		DOY:  doy,
		GPP:  s.GPP * perDay,
		NPP:  s.NPP * perDay,
		RAU:  s.RAu * perDay,
		CL:   s.LeafMass * kgBiomassToGC,
		CW:   s.StemMass * kgBiomassToGC,
		CCR:  s.CoarseRootMass * kgBiomassToGC,
		CFR:  s.FineRootMass * kgBiomassToGC,
		CR:   (s.CoarseRootMass + s.FineRootMass) * kgBiomassToGC,
		GS:   s.CWM.Gs,
		ET:   s.Trans / daysPerYear,
		LAI:  s.LAI,
	}
}

// NewStructureRecords converts community stats to structure.csv rows, the
// community row first.
func NewStructureRecords(s CommunityStats, refYear int) []StructureRecord {
	year, _ := CalendarDate(s.T, refYear)
	out := make([]StructureRecord, 0, len(s.Species)+1)
	out = append(out, communityStructureRecord(s, year))
	for _, sp := range s.Species {
		sla := Missing
		if sp.LMA > 0 {
			sla = 1 / sp.LMA
		}
		out = append(out, StructureRecord{
			Year: year,
			PID:  sp.Index,
			DE:   sp.NInd,
			OC:   sp.OpenCanopyArea,
			PH:   sp.MeanHeight,
			MH:   sp.MaxHeight,
			CA:   sp.CanopyArea,
			BA:   sp.BasalArea,
			TB:   sp.Biomass,
			WD:   sp.WoodDensity,
			MO:   sp.Mortality,
			SLA:  sla,
			P50:  sp.P50,
		})
	}
	return out
}

func communityStructureRecord(s CommunityStats, year int) StructureRecord {
	r := StructureRecord{
		Year: year,
		PID:  int(Missing),
		DE:   s.NInd,
		OC:   s.OpenCanopyArea,
		PH:   s.MeanHeight,
		MH:   Missing,
		CA:   s.CanopyArea,
		BA:   s.BasalArea,
		TB:   s.Biomass,
		WD:   Missing,
		MO:   Missing,
		SLA:  Missing,
		P50:  Missing,
	}
	if s.NInd > 0 {
		r.MH = s.CWM.HMat
		r.WD = s.CWM.WoodDensity
		r.MO = s.MeanMortality
		r.P50 = s.CWM.P50
		if s.CWM.LMA > 0 {
			r.SLA = 1 / s.CWM.LMA
		}
	}
	return r
}

// NewSpeciesRecords converts community stats to species.csv rows.
func NewSpeciesRecords(s CommunityStats) []SpeciesRecord {
	out := make([]SpeciesRecord, 0, len(s.Species))
	for _, sp := range s.Species {
		out = append(out, SpeciesRecord{
			T:         s.T,
			Species:   sp.Name,
			NInd:      sp.NInd,
			Biomass:   sp.Biomass,
			BasalArea: sp.BasalArea,
			Seeds:     sp.Seeds,
			BirthFlux: sp.BirthFlux,
		})
	}
	return out
}

// NewCanopyRecords converts the canopy layer structure to canopy.csv rows.
// Layer 0 has no lower boundary and is reported with z_star 0.
func NewCanopyRecords(t float64, canopy *systems.CanopySystem) []CanopyRecord {
	out := make([]CanopyRecord, 0, len(canopy.Openness))
	for l, o := range canopy.Openness {
		var z float64
		if l > 0 {
			z = canopy.ZStar[l-1]
		}
		out = append(out, CanopyRecord{T: t, Layer: l, ZStar: z, Openness: o})
	}
	return out
}

// NewCohortRecords dumps every cohort of the community.
func NewCohortRecords(t float64, c *population.Community) []CohortRecord {
	out := make([]CohortRecord, 0, c.NumCohorts())
	for k := 0; k < c.NumSpecies(); k++ {
		for i := 0; i < c.Species(k).Len(); i++ {
			p, d, r := c.Cohort(k, i)
			g := &p.Geometry
			var gppA float64
			if g.CrownArea > 0 {
				gppA = r.GPP / g.CrownArea
			}
			out = append(out, CohortRecord{
				T:          t,
				Species:    k,
				Cohort:     i,
				Size:       g.Diameter,
				Density:    d.U,
				Height:     g.Height,
				LAI:        g.LAI,
				Mortality:  r.Mortality,
				SeedPool:   p.SeedPool,
				RGR:        r.RGR,
				GPPPerArea: gppA,
			})
		}
	}
	return out
}
