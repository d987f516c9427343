package telemetry

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/plantfate/population"
	"github.com/pthm-cable/plantfate/simerr"
)

// Quadrature selects how per-cohort quantities are integrated over size.
type Quadrature int

const (
	// QuadratureSum treats cohorts as point masses: sum of u_i * w_i.
	QuadratureSum Quadrature = iota
	// QuadratureTrapezoid treats u as a density over size and integrates
	// u*w with the trapezoidal rule.
	QuadratureTrapezoid
)

// ParseQuadrature maps a config value to a Quadrature.
func ParseQuadrature(s string) (Quadrature, error) {
	switch strings.ToLower(s) {
	case "", "sum":
		return QuadratureSum, nil
	case "trapezoid":
		return QuadratureTrapezoid, nil
	}
	return QuadratureSum, fmt.Errorf("unknown quadrature %q: %w", s, simerr.ErrConfig)
}

// AggregateOptions configures Aggregate.
type AggregateOptions struct {
	MinBasalDiameter float64 // smallest stem counted in basal area (m)
	Quadrature       Quadrature
}

// DefaultAggregateOptions returns a 10 cm basal-area cutoff with point
// quadrature.
func DefaultAggregateOptions() AggregateOptions {
	return AggregateOptions{MinBasalDiameter: 0.1, Quadrature: QuadratureSum}
}

// cohortSample is one cohort's contribution, ordered by size for quadrature.
type cohortSample struct {
	size      float64
	basal     float64
	u         float64
	height    float64
	crownArea float64
	lai       float64
	openLayer bool

	biomass, leaf, stem, croot, froot float64

	gpp, npp, resp, trans float64
	mortality, fecundity  float64
}

// integral returns the integral of u*w over size from xLow upwards.
func (o AggregateOptions) integral(cs []cohortSample, w func(*cohortSample) float64, xLow float64) float64 {
	if o.Quadrature == QuadratureSum || len(cs) < 2 {
		total := 0.0
		for i := range cs {
			if cs[i].size >= xLow {
				total += cs[i].u * w(&cs[i])
			}
		}
		return total
	}

	x := make([]float64, 0, len(cs)+1)
	f := make([]float64, 0, len(cs)+1)
	for i := range cs {
		if cs[i].size < xLow {
			continue
		}
		fi := cs[i].u * w(&cs[i])
		// Interpolate the lower edge between the bracketing cohorts.
		if len(x) == 0 && i > 0 && cs[i].size > xLow {
			p := &cs[i-1]
			fp := p.u * w(p)
			frac := (xLow - p.size) / (cs[i].size - p.size)
			x = append(x, xLow)
			f = append(f, fp+(fi-fp)*frac)
		}
		x = append(x, cs[i].size)
		f = append(f, fi)
	}
	if len(x) < 2 {
		return 0
	}
	return integrate.Trapezoidal(x, f)
}

// Aggregate integrates the community against cohort densities. The result
// is per unit ground area.
func Aggregate(t float64, c *population.Community, opts AggregateOptions) CommunityStats {
	n := c.NumSpecies()
	cs := CommunityStats{T: t, Species: make([]SpeciesStats, n)}

	nInd := make([]float64, n)
	hmat := make([]float64, n)
	lma := make([]float64, n)
	wd := make([]float64, n)
	p50 := make([]float64, n)
	var gsVals, gsWeights, mortVals, mortWeights []float64

	all := func(*cohortSample) float64 { return 1 }
	for k := 0; k < n; k++ {
		sp := c.Species(k)
		spTraits := sp.Traits()
		tr := &spTraits

		samples := make([]cohortSample, 0, sp.Len())
		for i := 0; i < sp.Len(); i++ {
			p, d, r := c.Cohort(k, i)
			g := &p.Geometry
			samples = append(samples, cohortSample{
				size:      g.Diameter,
				basal:     g.BasalArea(),
				u:         d.U,
				height:    g.Height,
				crownArea: g.CrownArea,
				lai:       g.LAI,
				openLayer: r.Layer == 0,
				biomass:   g.TotalMass(tr),
				leaf:      g.LeafMass(tr),
				stem:      g.StemMass(tr),
				croot:     g.CoarseRootMass,
				froot:     g.FineRootMass(tr),
				gpp:       r.GPP,
				npp:       r.NPP,
				resp:      r.Respiration(),
				trans:     r.Trans,
				mortality: r.Mortality,
				fecundity: r.Fecundity,
			})
			if d.U > 0 {
				gsVals = append(gsVals, r.GsAvg)
				gsWeights = append(gsWeights, d.U)
				mortVals = append(mortVals, r.Mortality)
				mortWeights = append(mortWeights, d.U)
			}
		}
		sort.Slice(samples, func(a, b int) bool { return samples[a].size < samples[b].size })

		ss := SpeciesStats{
			Index: k,
			Name:  tr.Name,
			NInd:  opts.integral(samples, all, 0),
			Biomass: opts.integral(samples, func(s *cohortSample) float64 {
				return s.biomass
			}, 0),
			BasalArea: opts.integral(samples, func(s *cohortSample) float64 {
				return s.basal
			}, opts.MinBasalDiameter),
			CanopyArea: opts.integral(samples, func(s *cohortSample) float64 {
				return s.crownArea
			}, 0),
			OpenCanopyArea: opts.integral(samples, func(s *cohortSample) float64 {
				if s.openLayer {
					return s.crownArea
				}
				return 0
			}, 0),
			LAI: opts.integral(samples, func(s *cohortSample) float64 {
				return s.crownArea * s.lai
			}, 0),
			Seeds: opts.integral(samples, func(s *cohortSample) float64 {
				return s.fecundity
			}, 0),
			LeafMass:       opts.integral(samples, func(s *cohortSample) float64 { return s.leaf }, 0),
			StemMass:       opts.integral(samples, func(s *cohortSample) float64 { return s.stem }, 0),
			CoarseRootMass: opts.integral(samples, func(s *cohortSample) float64 { return s.croot }, 0),
			FineRootMass:   opts.integral(samples, func(s *cohortSample) float64 { return s.froot }, 0),
			GPP:            opts.integral(samples, func(s *cohortSample) float64 { return s.gpp }, 0),
			NPP:            opts.integral(samples, func(s *cohortSample) float64 { return s.npp }, 0),
			RAu:            opts.integral(samples, func(s *cohortSample) float64 { return s.resp }, 0),
			Trans:          opts.integral(samples, func(s *cohortSample) float64 { return s.trans }, 0),
			WoodDensity:    tr.WoodDensity,
			LMA:            tr.LMA,
			P50:            tr.P50Xylem,
			MeanHeight:     Missing,
			MaxHeight:      Missing,
			Mortality:      Missing,
		}
		if ss.NInd > 0 {
			ss.MeanHeight = opts.integral(samples, func(s *cohortSample) float64 { return s.height }, 0) / ss.NInd
			ss.Mortality = opts.integral(samples, func(s *cohortSample) float64 { return s.mortality }, 0) / ss.NInd
			ss.MaxHeight = 0
			for _, s := range samples {
				if s.u > 0 {
					ss.MaxHeight = math.Max(ss.MaxHeight, s.height)
				}
			}
		}
		cs.Species[k] = ss

		nInd[k] = ss.NInd
		hmat[k], lma[k], wd[k], p50[k] = tr.HMat, tr.LMA, tr.WoodDensity, tr.P50Xylem
	}

	cs.MeanHeight = Missing
	heightSum := 0.0
	for _, ss := range cs.Species {
		if ss.NInd > 0 {
			heightSum += ss.MeanHeight * ss.NInd
		}
		cs.NInd += ss.NInd
		cs.Biomass += ss.Biomass
		cs.BasalArea += ss.BasalArea
		cs.CanopyArea += ss.CanopyArea
		cs.OpenCanopyArea += ss.OpenCanopyArea
		cs.LAI += ss.LAI
		cs.Seeds += ss.Seeds
		cs.LeafMass += ss.LeafMass
		cs.StemMass += ss.StemMass
		cs.CoarseRootMass += ss.CoarseRootMass
		cs.FineRootMass += ss.FineRootMass
		cs.GPP += ss.GPP
		cs.NPP += ss.NPP
		cs.RAu += ss.RAu
		cs.Trans += ss.Trans
		if ss.MaxHeight > cs.MaxHeight {
			cs.MaxHeight = ss.MaxHeight
		}
	}

	if cs.NInd > 0 {
		cs.MeanHeight = heightSum / cs.NInd
	}

	// Community-weighted means are weighted by individuals, never by biomass.
	if floats.Sum(nInd) > 0 {
		cs.CWM = TraitMeans{
			HMat:        stat.Mean(hmat, nInd),
			LMA:         stat.Mean(lma, nInd),
			WoodDensity: stat.Mean(wd, nInd),
			P50:         stat.Mean(p50, nInd),
		}
	}
	if floats.Sum(gsWeights) > 0 {
		cs.CWM.Gs = stat.Mean(gsVals, gsWeights)
		cs.MeanMortality = stat.Mean(mortVals, mortWeights)
	}
	return cs
}
