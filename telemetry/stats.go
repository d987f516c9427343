package telemetry

import (
	"log/slog"
	"sort"
)

// Missing marks a value that is undefined, such as the mean height of an
// extinct species.
const Missing = -9999.0

// TraitMeans are community-weighted trait means.
type TraitMeans struct {
	HMat        float64
	LMA         float64
	WoodDensity float64
	P50         float64
	Gs          float64
}

// SpeciesStats holds one species' integrals per unit ground area.
// Masses are kg biomass, fluxes kg biomass per year.
type SpeciesStats struct {
	Index int
	Name  string

	NInd           float64
	Biomass        float64
	BasalArea      float64
	CanopyArea     float64
	OpenCanopyArea float64 // crown area in the top layer
	LAI            float64
	Seeds          float64 // seed output per year
	BirthFlux      float64 // smoothed recruitment flux fed back to the solver (m-2 yr-1)

	LeafMass       float64
	StemMass       float64
	CoarseRootMass float64
	FineRootMass   float64

	GPP   float64
	NPP   float64
	RAu   float64
	Trans float64

	MeanHeight float64
	MaxHeight  float64
	Mortality  float64

	WoodDensity float64
	LMA         float64
	P50         float64
}

// CommunityStats is the community aggregate at one report time.
type CommunityStats struct {
	T float64

	NInd           float64
	Biomass        float64
	BasalArea      float64
	CanopyArea     float64
	OpenCanopyArea float64
	LAI            float64
	Seeds          float64
	MeanHeight     float64 // Missing when no individuals are left
	MaxHeight      float64

	LeafMass       float64
	StemMass       float64
	CoarseRootMass float64
	FineRootMass   float64

	GPP   float64
	NPP   float64
	RAu   float64
	Trans float64

	MeanMortality float64
	CWM           TraitMeans

	Species []SpeciesStats
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// HeightPercentiles returns the 10th, 50th and 90th percentiles of the
// species mean heights, skipping extinct species.
func (s CommunityStats) HeightPercentiles() (p10, p50, p90 float64) {
	var hs []float64
	for _, sp := range s.Species {
		if sp.MeanHeight != Missing {
			hs = append(hs, sp.MeanHeight)
		}
	}
	sort.Float64s(hs)
	return Percentile(hs, 0.1), Percentile(hs, 0.5), Percentile(hs, 0.9)
}

// Surviving returns the number of species with individuals left.
func (s CommunityStats) Surviving() int {
	n := 0
	for _, sp := range s.Species {
		if sp.NInd > 0 {
			n++
		}
	}
	return n
}

// LogValue implements slog.LogValuer for structured logging.
func (s CommunityStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("t", s.T),
		slog.Int("species", s.Surviving()),
		slog.Float64("n_ind", s.NInd),
		slog.Float64("biomass", s.Biomass),
		slog.Float64("basal_area", s.BasalArea),
		slog.Float64("lai", s.LAI),
		slog.Float64("gpp", s.GPP),
		slog.Float64("npp", s.NPP),
		slog.Float64("mean_height", s.MeanHeight),
		slog.Float64("max_height", s.MaxHeight),
		slog.Float64("cwm_hmat", s.CWM.HMat),
		slog.Float64("cwm_lma", s.CWM.LMA),
		slog.Float64("cwm_wd", s.CWM.WoodDensity),
		slog.Float64("cwm_p50", s.CWM.P50),
	)
}

// LogStats logs the community stats using slog.
func (s CommunityStats) LogStats() {
	slog.Info("stats", "community", s)
}
