package geometry

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/plantfate/ode"
	"github.com/pthm-cable/plantfate/simerr"
	"github.com/pthm-cable/plantfate/traits"
)

// Allocation is the split of one plant's gross production into respiration,
// turnover, reproduction, leaf-area change and structural growth. All values
// are rates per year for a single individual, in kg of biomass.
type Allocation struct {
	Gross float64

	RespLeaf    float64
	RespRoot    float64
	RespStem    float64
	Respiration float64

	Turnover float64 // leaf and fine-root replacement
	Net      float64 // gross - respiration - turnover

	Reproduction float64
	Deficit      float64 // unmet demand when Net < 0

	DLAI    float64 // d(LAI)/dt
	LAICost float64 // mass spent on (or released by) the LAI change
	Litter  float64 // turnover plus shed leaves and fine roots

	Growth      float64 // mass into structure at fixed LAI
	DSize       float64 // dD/dt
	DCoarseRoot float64
	DSapwood    float64 // ODE sapwood rate
	DHeartwood  float64 // ODE heartwood rate
}

// Allocate splits gross production using the plant's current maturity.
func (g *PlantGeometry) Allocate(gross float64, tr *traits.Traits, par *Params) Allocation {
	return g.allocate(gross, tr, par, g.Diameter >= tr.DMat)
}

// allocate takes the maturity regime explicitly so that integrators can keep
// it fixed over a step that crosses DMat.
func (g *PlantGeometry) allocate(gross float64, tr *traits.Traits, par *Params, mature bool) Allocation {
	leaf := g.LeafMass(tr)
	froot := g.FineRootMass(tr)

	al := Allocation{
		Gross:    gross,
		RespLeaf: par.RLeaf * leaf,
		RespRoot: par.RRoot * froot,
		RespStem: par.RStem * g.SapwoodMass(tr),
	}
	al.Respiration = al.RespLeaf + al.RespRoot + al.RespStem

	if tr.LeafLifespan > 0 {
		al.Turnover += leaf / tr.LeafLifespan
	}
	al.Turnover += froot / par.RootLifespan
	al.Litter = al.Turnover

	al.Net = gross - al.Respiration - al.Turnover
	if al.Net <= 0 {
		al.Deficit = -al.Net
		return al
	}

	al.Reproduction = reproductionFraction(g.Diameter, mature, par, tr) * al.Net
	avail := al.Net - al.Reproduction

	al.DLAI, al.LAICost = g.DMassDtLAI(par.LAIResponse*(par.LAIMax-g.LAI), avail, tr)
	if al.LAICost < 0 {
		al.Litter -= al.LAICost
	} else {
		avail -= al.LAICost
	}

	al.Growth = avail
	al.DSize = g.DSizeDMass(tr) * avail
	dStem := g.dStemDD(tr) * al.DSize
	al.DCoarseRoot = g.geom.fcr * dStem

	// Heartwood forms from sapwood at a specific rate set by the allometry;
	// applying that rate to the ODE sapwood keeps the pair self-consistent.
	if sap := g.SapwoodMass(tr); sap > 0 {
		kSap := g.dHeartwoodDD(tr) * al.DSize / sap
		al.DHeartwood = kSap * g.SapwoodMassODE
	}
	al.DSapwood = dStem - al.DHeartwood
	return al
}

// Derivatives writes the state rates in StateFields order and returns the
// remainder of s.
func (al Allocation) Derivatives(s []float64) []float64 {
	s[0] = al.DSize
	s[1] = al.DLAI
	s[2] = al.DCoarseRoot
	s[3] = al.DSapwood
	s[4] = al.DHeartwood
	return s[StateFields:]
}

// LogValue implements slog.LogValuer.
func (al Allocation) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("gross", al.Gross),
		slog.Float64("resp", al.Respiration),
		slog.Float64("turnover", al.Turnover),
		slog.Float64("repro", al.Reproduction),
		slog.Float64("growth", al.Growth),
		slog.Float64("deficit", al.Deficit),
	)
}

// Budget accumulates the mass fluxes of a GrowFor call (kg per plant).
// Over the call, the change in total mass equals
// Production - Respiration - Litter - Reproduction + Deficit.
type Budget struct {
	Production   float64
	Respiration  float64
	Litter       float64
	Reproduction float64
	Deficit      float64
}

const budgetFields = 5

// GrowFor grows the plant for dt years at an assimilation rate a per unit
// crown area (kg m-2 yr-1). Substeps never exceed par.MaxStep, and a substep
// that would carry the diameter past DMat is shortened to end on it.
func (g *PlantGeometry) GrowFor(dt, a float64, tr *traits.Traits, par *Params) (Budget, error) {
	var b Budget
	if dt < 0 {
		return b, fmt.Errorf("negative growth interval %v: %w", dt, simerr.ErrPrecondition)
	}

	y := make([]float64, StateFields+budgetFields)
	next := make([]float64, len(y))
	g.State(y)

	var rk ode.RK4
	scratch := *g
	for t := 0.0; t < dt; {
		h := min(par.MaxStep, dt-t)
		mature := g.Diameter >= tr.DMat
		f := func(_ float64, s, ds []float64) error {
			scratch.SetState(s, tr)
			al := scratch.allocate(a*scratch.CrownArea, tr, par, mature)
			rest := al.Derivatives(ds)
			rest[0] = al.Gross
			rest[1] = al.Respiration
			rest[2] = al.Litter
			rest[3] = al.Reproduction
			rest[4] = al.Deficit
			return nil
		}

		if err := rk.Step(f, t, h, y, next); err != nil {
			return b, err
		}
		if !mature && next[0] >= tr.DMat {
			// Shorten the substep until it ends just past DMat.
			lo, hi := 0.0, h
			for i := 0; i < 60 && hi-lo > 1e-12*h; i++ {
				mid := 0.5 * (lo + hi)
				if err := rk.Step(f, t, mid, y, next); err != nil {
					return b, err
				}
				if next[0] >= tr.DMat {
					hi = mid
				} else {
					lo = mid
				}
			}
			h = hi
			if err := rk.Step(f, t, h, y, next); err != nil {
				return b, err
			}
		}

		copy(y, next)
		g.SetState(y, tr)
		t += h
	}

	acc := y[StateFields:]
	b = Budget{
		Production:   acc[0],
		Respiration:  acc[1],
		Litter:       acc[2],
		Reproduction: acc[3],
		Deficit:      acc[4],
	}
	return b, g.CheckConsistency(tr, par.ConsistencyTol)
}
