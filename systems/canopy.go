// Package systems contains the ECS systems that update cohort physiology
// between solver evaluations.
package systems

import (
	"math"
	"sort"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/plantfate/components"
)

// crownSample is a copy of the crown state of one cohort.
type crownSample struct {
	u      float64
	height float64
	plant  components.Plant
}

// CanopySystem assigns cohorts to light layers with the perfect-plasticity
// approximation: layer boundaries z* are the heights above which the
// gap-corrected crown area of all plants fills whole multiples of the ground
// area.
type CanopySystem struct {
	filter ecs.Filter3[components.Plant, components.Density, components.Rates]
	k      float64

	crowns []crownSample

	// ZStar[l-1] is the lower boundary of layer l-1 (descending).
	ZStar []float64
	// Openness[l] is the light fraction reaching layer l; Openness[0] = 1.
	Openness []float64
}

// NewCanopySystem creates a canopy system with light extinction coefficient k.
func NewCanopySystem(w *ecs.World, k float64) *CanopySystem {
	return &CanopySystem{
		filter: *ecs.NewFilter3[components.Plant, components.Density, components.Rates](w),
		k:      k,
	}
}

// CrownAreaAbove returns the total gap-corrected crown area above z per unit
// ground area, using the crowns collected by the last Update.
func (s *CanopySystem) CrownAreaAbove(z float64) float64 {
	total := 0.0
	for i := range s.crowns {
		c := &s.crowns[i]
		if c.height <= z {
			continue
		}
		total += c.u * c.plant.Geometry.CrownAreaAbove(z)
	}
	return total
}

// LeafAreaAbove returns the total leaf area above z per unit ground area.
func (s *CanopySystem) LeafAreaAbove(z float64) float64 {
	total := 0.0
	for i := range s.crowns {
		c := &s.crowns[i]
		if c.height <= z {
			continue
		}
		total += c.u * c.plant.Geometry.LeafAreaAbove(z)
	}
	return total
}

// Layer returns the canopy layer of a plant of height h.
func (s *CanopySystem) Layer(h float64) int {
	// ZStar is descending; count boundaries strictly above h.
	return sort.Search(len(s.ZStar), func(i int) bool { return s.ZStar[i] <= h })
}

// Update recomputes layer boundaries and writes each cohort's layer and
// openness to its Rates.
func (s *CanopySystem) Update() {
	s.crowns = s.crowns[:0]
	hMax := 0.0
	query := s.filter.Query()
	for query.Next() {
		plant, density, _ := query.Get()
		if density.U <= 0 {
			continue
		}
		s.crowns = append(s.crowns, crownSample{u: density.U, height: plant.Geometry.Height, plant: *plant})
		hMax = math.Max(hMax, plant.Geometry.Height)
	}

	s.ZStar = s.ZStar[:0]
	s.Openness = append(s.Openness[:0], 1)
	layers := int(math.Floor(s.CrownAreaAbove(0)))
	for l := 1; l <= layers; l++ {
		z := s.solveLayer(float64(l), hMax)
		s.ZStar = append(s.ZStar, z)
		s.Openness = append(s.Openness, math.Exp(-s.k*s.LeafAreaAbove(z)))
	}

	query = s.filter.Query()
	for query.Next() {
		plant, _, rates := query.Get()
		rates.Layer = s.Layer(plant.Geometry.Height)
		rates.Openness = s.Openness[rates.Layer]
	}
}

// solveLayer finds z with CrownAreaAbove(z) = target by bisection. The
// crown area above z is non-increasing in z.
func (s *CanopySystem) solveLayer(target, hMax float64) float64 {
	lo, hi := 0.0, hMax
	for i := 0; i < 60 && hi-lo > 1e-9; i++ {
		mid := 0.5 * (lo + hi)
		if s.CrownAreaAbove(mid) >= target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}
