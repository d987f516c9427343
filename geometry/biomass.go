package geometry

import (
	"fmt"
	"math"

	"github.com/pthm-cable/plantfate/simerr"
	"github.com/pthm-cable/plantfate/traits"
)

// LeafMass returns LAI * crown area * LMA.
func (g *PlantGeometry) LeafMass(tr *traits.Traits) float64 {
	return g.LAI * g.CrownArea * tr.LMA
}

// FineRootMass returns LAI * crown area * zeta.
func (g *PlantGeometry) FineRootMass(tr *traits.Traits) float64 {
	return g.LAI * g.CrownArea * tr.Zeta
}

// RootMass returns fine plus coarse roots.
func (g *PlantGeometry) RootMass(tr *traits.Traits) float64 {
	return g.FineRootMass(tr) + g.CoarseRootMass
}

// StemMass returns rho * eta * pi/4 * D^2 * H.
func (g *PlantGeometry) StemMass(tr *traits.Traits) float64 {
	d := g.Diameter
	return tr.WoodDensity * g.geom.eta * math.Pi / 4 * d * d * g.Height
}

// SapwoodMass returns the sapwood share of the stem.
func (g *PlantGeometry) SapwoodMass(tr *traits.Traits) float64 {
	return g.SapwoodFraction * g.StemMass(tr)
}

// HeartwoodMass returns the stem mass that is no longer sapwood.
func (g *PlantGeometry) HeartwoodMass(tr *traits.Traits) float64 {
	return g.StemMass(tr) - g.SapwoodMass(tr)
}

// TotalMass returns leaf + root + sapwood + heartwood.
func (g *PlantGeometry) TotalMass(tr *traits.Traits) float64 {
	return g.LeafMass(tr) + g.RootMass(tr) + g.SapwoodMass(tr) + g.HeartwoodMass(tr)
}

// BasalArea returns the stem cross-section at the base.
func (g *PlantGeometry) BasalArea() float64 {
	return math.Pi * g.Diameter * g.Diameter / 4
}

func (g *PlantGeometry) dStemDD(tr *traits.Traits) float64 {
	d, h := g.Diameter, g.Height
	return tr.WoodDensity * g.geom.eta * math.Pi / 4 * (2*d*h + d*d*g.dHeightDD(tr))
}

func (g *PlantGeometry) dSapwoodDD(tr *traits.Traits) float64 {
	// sapwood = rho*eta*pi/(4a) * D * H^2
	h := g.Height
	return tr.WoodDensity * g.geom.eta * math.Pi / (4 * g.geom.a) * (h*h + 2*g.Diameter*h*g.dHeightDD(tr))
}

func (g *PlantGeometry) dHeartwoodDD(tr *traits.Traits) float64 {
	return g.dStemDD(tr) - g.dSapwoodDD(tr)
}

// DSizeDMass returns dD/dM: the diameter gained per unit of structural mass
// at fixed LAI, with coarse roots growing in proportion to the stem.
func (g *PlantGeometry) DSizeDMass(tr *traits.Traits) float64 {
	dA := g.dCrownAreaDD(tr)
	dLeaf := g.LAI * tr.LMA * dA
	dFineRoot := g.LAI * tr.Zeta * dA
	dWood := (1 + g.geom.fcr) * g.dStemDD(tr)
	return 1 / (dLeaf + dFineRoot + dWood)
}

// DReproductionDMass returns the fraction of surplus assimilate diverted to
// seeds. It is exactly zero below DMat and jumps to AF1/2 at DMat.
func (g *PlantGeometry) DReproductionDMass(par *Params, tr *traits.Traits) float64 {
	return reproductionFraction(g.Diameter, g.Diameter >= tr.DMat, par, tr)
}

func reproductionFraction(d float64, mature bool, par *Params, tr *traits.Traits) float64 {
	if !mature {
		return 0
	}
	return par.AF1 / (1 + math.Exp(par.AF2*(1-d/tr.DMat)))
}

// DMassDtLAI returns the LAI rate that can be afforded with at most maxMass
// of assimilate per unit time, and the mass rate it costs. Negative rates
// (leaf shedding) are returned unchanged with a negative cost.
func (g *PlantGeometry) DMassDtLAI(dLdt, maxMass float64, tr *traits.Traits) (float64, float64) {
	unit := g.CrownArea * (tr.LMA + tr.Zeta)
	cost := dLdt * unit
	if cost > maxMass {
		if maxMass <= 0 || unit <= 0 {
			return 0, 0
		}
		return maxMass / unit, maxMass
	}
	return dLdt, cost
}

// CheckConsistency compares the ODE-tracked wood pair against the
// allometric pools and returns ErrConsistency when they differ by more than
// tol relative to the stem mass.
func (g *PlantGeometry) CheckConsistency(tr *traits.Traits, tol float64) error {
	stem := g.StemMass(tr)
	if stem <= 0 {
		return nil
	}
	dSap := math.Abs(g.SapwoodMassODE - g.SapwoodMass(tr))
	dHeart := math.Abs(g.HeartwoodMassODE - g.HeartwoodMass(tr))
	if (dSap+dHeart)/stem > tol {
		return fmt.Errorf("wood bookkeeping diverged at D=%.6g: sapwood ode=%.6g allom=%.6g, heartwood ode=%.6g allom=%.6g: %w",
			g.Diameter, g.SapwoodMassODE, g.SapwoodMass(tr), g.HeartwoodMassODE, g.HeartwoodMass(tr), simerr.ErrConsistency)
	}
	return nil
}
