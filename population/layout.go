package population

import "github.com/pthm-cable/plantfate/geometry"

// Slots of a cohort in the flat state vector.
const (
	SlotSize = iota
	SlotLAI
	SlotCoarseRoot
	SlotSapwood
	SlotHeartwood
	SlotDensity
	SlotSeedPool

	// CohortWidth is the number of slots per cohort.
	CohortWidth
)

// The geometry occupies the leading slots.
var _ [geometry.StateFields]struct{} = [SlotDensity]struct{}{}

// CohortState is a fixed-width view of one cohort in the state vector.
type CohortState [CohortWidth]float64

// Geometry returns the geometry slots.
func (c *CohortState) Geometry() []float64 {
	return c[:geometry.StateFields]
}

// Layout locates one species' cohorts in the state vector.
type Layout struct {
	Offset int
	Count  int
}

// Len returns the number of slots the species occupies.
func (l Layout) Len() int {
	return l.Count * CohortWidth
}

// Cohort returns a view of cohort i inside v. Writes through the view
// modify v.
func (l Layout) Cohort(v []float64, i int) *CohortState {
	start := l.Offset + i*CohortWidth
	return (*CohortState)(v[start : start+CohortWidth])
}

// Slice returns the species' part of v.
func (l Layout) Slice(v []float64) []float64 {
	return v[l.Offset : l.Offset+l.Len()]
}
