package geometry

import "github.com/pthm-cable/plantfate/traits"

// StateFields is the number of flat-vector slots a geometry occupies:
// size, LAI, coarse-root mass, ODE sapwood, ODE heartwood.
const StateFields = 5

// SetState reads the geometry from the front of s, recomputes the derived
// quantities and returns the unread remainder.
func (g *PlantGeometry) SetState(s []float64, tr *traits.Traits) []float64 {
	g.LAI = s[1]
	g.SapwoodMassODE = s[3]
	g.HeartwoodMassODE = s[4]
	g.CoarseRootMass = s[2]
	g.SetSize(s[0], tr)
	return s[StateFields:]
}

// State writes the geometry to the front of s and returns the remainder.
func (g *PlantGeometry) State(s []float64) []float64 {
	s[0] = g.Diameter
	s[1] = g.LAI
	s[2] = g.CoarseRootMass
	s[3] = g.SapwoodMassODE
	s[4] = g.HeartwoodMassODE
	return s[StateFields:]
}
