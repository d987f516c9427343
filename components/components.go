// Package components defines ECS components for the simulation.
//
// Each cohort is one entity carrying a Plant, a Density and the Rates last
// computed for it by the physiology system.
package components

import (
	"github.com/pthm-cable/plantfate/geometry"
	"github.com/pthm-cable/plantfate/traits"
)

// Plant is the per-cohort individual state.
type Plant struct {
	Species  traits.ID
	Geometry geometry.PlantGeometry
	SeedPool float64 // cumulative seeds produced per individual
}

// Density is the number of individuals per unit ground area the cohort
// represents. Only the solver writes it during a run.
type Density struct {
	U float64
}

// Rates holds the instantaneous physiology of one individual.
// Carbon fluxes are kg biomass per year.
type Rates struct {
	GPP   float64
	NPP   float64
	RLeaf float64
	RRoot float64
	RStem float64

	Trans float64 // transpiration (kg H2O yr-1)
	GsAvg float64 // mean stomatal conductance (mol m-2 s-1)

	RGR       float64 // relative diameter growth rate (1/yr)
	Mortality float64 // instantaneous mortality rate (1/yr)
	Fecundity float64 // seeds per year

	Layer    int     // canopy layer, 0 is the top
	Openness float64 // fraction of above-canopy light reaching the crown

	Allocation geometry.Allocation
}

// Respiration returns total maintenance respiration.
func (r *Rates) Respiration() float64 {
	return r.RLeaf + r.RRoot + r.RStem
}
