// Package geometry converts a plant's basal diameter into height, crown
// shape and biomass pools, and grows the plant from an assimilate supply.
//
// All allometry follows H = HMat(1 - exp(-aD/HMat)) and a crown area that is
// proportional to D*H. The crown radius profile along normalised height z is
//
//	q(z) = m n z^(n-1) (1 - z^n)^(m-1)
//
// which peaks at zm/H = ((n-1)/(mn-1))^(1/n).
package geometry

import (
	"math"

	"github.com/pthm-cable/plantfate/traits"
)

// shape holds the crown constants precomputed from Params.
type shape struct {
	m, n   float64
	a      float64
	fg     float64
	eta    float64
	fcr    float64
	pic4a  float64 // pi*c/(4a): crown area = pic4a * D * H
	zmH    float64 // height of maximum crown radius relative to H
	qm     float64 // q at zmH
	lai0   float64
	params *Params
}

func newShape(p *Params) shape {
	m, n := p.M, p.N
	zmn := (n - 1) / (m*n - 1) // zm^n
	return shape{
		m:      m,
		n:      n,
		a:      p.A,
		fg:     p.FG,
		eta:    p.Eta,
		fcr:    p.FCR,
		pic4a:  math.Pi * p.C / (4 * p.A),
		zmH:    math.Pow(zmn, 1/n),
		qm:     m * n * math.Pow(zmn, 1-1/n) * math.Pow((m-1)*n/(m*n-1), m-1),
		lai0:   p.LAI0,
		params: p,
	}
}

// PlantGeometry is the per-cohort geometric and woody-mass state.
//
// State: Diameter, LAI, CoarseRootMass and the ODE-tracked wood pair.
// Everything else is derived by SetSize and must not be written directly.
type PlantGeometry struct {
	geom shape

	LAI            float64
	Diameter       float64
	CoarseRootMass float64

	// Independently integrated wood masses, compared against the
	// allometric values by CheckConsistency.
	SapwoodMassODE   float64
	HeartwoodMassODE float64

	Height                  float64
	CrownArea               float64
	SapwoodFraction         float64
	FunctionalXylemFraction float64
	RootingDepth            float64
}

// Init sets up a plant of the given size with initial LAI, coarse roots at
// their allometric share of the stem, and wood ODE pools matching the
// allometric pools.
func (g *PlantGeometry) Init(par *Params, tr *traits.Traits, size float64) {
	g.geom = newShape(par)
	g.LAI = par.LAI0
	g.SetSize(size, tr)
	g.SetCoarseRootMass(par.FCR*g.StemMass(tr), tr)
	g.ResetWoodODE(tr)
}

// Params returns the parameters the geometry was initialised with.
func (g *PlantGeometry) Params() *Params {
	return g.geom.params
}

// InitialLAI returns the leaf area index a newly initialised plant starts with.
func (g *PlantGeometry) InitialLAI() float64 {
	return g.geom.lai0
}

// Size returns the size state variable (basal diameter).
func (g *PlantGeometry) Size() float64 {
	return g.Diameter
}

// SetSize sets the diameter and recomputes every derived quantity.
func (g *PlantGeometry) SetSize(d float64, tr *traits.Traits) {
	g.Diameter = d
	g.Height = tr.HMat * (1 - math.Exp(-g.geom.a*d/tr.HMat))
	g.CrownArea = g.geom.pic4a * d * g.Height
	if d > 0 {
		g.SapwoodFraction = g.Height / (g.geom.a * d)
	} else {
		g.SapwoodFraction = 1
	}
	g.FunctionalXylemFraction = 1 - 0.5*(1-g.SapwoodFraction)
	g.updateRootingDepth(tr)
}

// SetLAI sets the leaf area index.
func (g *PlantGeometry) SetLAI(l float64) {
	g.LAI = l
}

// SetCoarseRootMass sets the coarse-root pool and the rooting depth derived from it.
func (g *PlantGeometry) SetCoarseRootMass(m float64, tr *traits.Traits) {
	g.CoarseRootMass = m
	g.updateRootingDepth(tr)
}

// ResetWoodODE sets the ODE-tracked wood pair to the allometric values.
func (g *PlantGeometry) ResetWoodODE(tr *traits.Traits) {
	g.SapwoodMassODE = g.SapwoodMass(tr)
	g.HeartwoodMassODE = g.HeartwoodMass(tr)
}

// Coarse roots fill a cone whose radius equals its depth.
func (g *PlantGeometry) updateRootingDepth(tr *traits.Traits) {
	if g.CoarseRootMass <= 0 {
		g.RootingDepth = 0
		return
	}
	g.RootingDepth = math.Cbrt(3 * g.CoarseRootMass / (math.Pi * tr.WoodDensity))
}

// q is the normalised crown radius profile at relative height z in [0,1].
func (g *PlantGeometry) q(z float64) float64 {
	m, n := g.geom.m, g.geom.n
	if z <= 0 || z >= 1 {
		return 0
	}
	return m * n * math.Pow(z, n-1) * math.Pow(1-math.Pow(z, n), m-1)
}

// Zm returns the height of the widest point of the crown.
func (g *PlantGeometry) Zm() float64 {
	return g.Height * g.geom.zmH
}

// CrownProfile returns the projected crown area at height z: the full crown
// area below the widest point, shrinking with q^2 above it, and zero above
// the top.
func (g *PlantGeometry) CrownProfile(z float64) float64 {
	if z > g.Height {
		return 0
	}
	if z <= g.Zm() {
		return g.CrownArea
	}
	r := g.q(z/g.Height) / g.geom.qm
	return g.CrownArea * r * r
}

// CrownAreaAbove returns the gap-corrected crown area lying above height z,
// used by the perfect-plasticity canopy model. It equals CrownArea at z = 0,
// (1-fg)*CrownArea at the widest point, and zero at the top.
func (g *PlantGeometry) CrownAreaAbove(z float64) float64 {
	if z >= g.Height || g.Height <= 0 {
		return 0
	}
	r := g.q(z/g.Height) / g.geom.qm
	if z >= g.Zm() {
		return g.CrownArea * (1 - g.geom.fg) * r * r
	}
	return g.CrownArea * (1 - g.geom.fg*r*r)
}

// LeafAreaAbove returns the leaf area lying above height z.
func (g *PlantGeometry) LeafAreaAbove(z float64) float64 {
	return g.LAI * g.CrownAreaAbove(z)
}

// dHeightDD returns dH/dD.
func (g *PlantGeometry) dHeightDD(tr *traits.Traits) float64 {
	return g.geom.a * math.Exp(-g.geom.a*g.Diameter/tr.HMat)
}

// dCrownAreaDD returns dA/dD.
func (g *PlantGeometry) dCrownAreaDD(tr *traits.Traits) float64 {
	return g.geom.pic4a * (g.Height + g.Diameter*g.dHeightDD(tr))
}
