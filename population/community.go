// Package population holds the cohorts of every species in an ECS world and
// maps them to and from the flat state vector the solver integrates.
package population

import (
	"fmt"
	"log/slog"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/plantfate/components"
	"github.com/pthm-cable/plantfate/geometry"
	"github.com/pthm-cable/plantfate/simerr"
	"github.com/pthm-cable/plantfate/traits"
)

// Species is one species' ordered cohort list. Index 0 is the newest
// (boundary) cohort; older cohorts follow.
type Species struct {
	ID      traits.ID
	traits  traits.Traits
	cohorts []ecs.Entity
	layout  Layout
}

// Traits returns a copy of the species' traits.
func (s *Species) Traits() traits.Traits {
	return s.traits
}

// Len returns the number of cohorts.
func (s *Species) Len() int {
	return len(s.cohorts)
}

// Layout returns where the species was placed by the last AppendState.
func (s *Species) Layout() Layout {
	return s.layout
}

// Entity returns the entity of cohort i.
func (s *Species) Entity(i int) ecs.Entity {
	return s.cohorts[i]
}

// Community is the set of all species and their cohorts.
type Community struct {
	world   *ecs.World
	mapper  *ecs.Map3[components.Plant, components.Density, components.Rates]
	table   *traits.Table
	par     *geometry.Params
	species []*Species
}

// New creates an empty community sharing the frozen trait table.
func New(table *traits.Table, par *geometry.Params) (*Community, error) {
	if !table.Frozen() {
		return nil, fmt.Errorf("trait table must be frozen before building a community: %w", simerr.ErrPrecondition)
	}
	world := ecs.NewWorld()
	return &Community{
		world:  world,
		mapper: ecs.NewMap3[components.Plant, components.Density, components.Rates](world),
		table:  table,
		par:    par,
	}, nil
}

// World returns the ECS world holding the cohort entities.
func (c *Community) World() *ecs.World {
	return c.world
}

// Params returns the shared plant parameters.
func (c *Community) Params() *geometry.Params {
	return c.par
}

// NumSpecies returns the number of species.
func (c *Community) NumSpecies() int {
	return len(c.species)
}

// Species returns species k.
func (c *Community) Species(k int) *Species {
	return c.species[k]
}

// Traits returns a copy of the traits of the species with the given table
// ID. ok is false if the species is not in the community.
func (c *Community) Traits(id traits.ID) (tr traits.Traits, ok bool) {
	for _, s := range c.species {
		if s.ID == id {
			return s.traits, true
		}
	}
	return tr, false
}

// AddSpecies registers a table species with one founder cohort.
func (c *Community) AddSpecies(id traits.ID, initialSize, initialDensity float64) (int, error) {
	if int(id) < 0 || int(id) >= c.table.Len() {
		return -1, fmt.Errorf("species id %d not in trait table: %w", id, simerr.ErrConfig)
	}
	for _, s := range c.species {
		if s.ID == id {
			return -1, fmt.Errorf("species %q added twice: %w", s.traits.Name, simerr.ErrConfig)
		}
	}
	c.species = append(c.species, &Species{ID: id, traits: c.table.Get(id)})
	k := len(c.species) - 1
	c.AddCohort(k, initialSize, initialDensity)

	slog.Debug("species added", "k", k, "traits", c.species[k].traits)
	return k, nil
}

// AddCohort prepends a new cohort of the given size and density to species k.
func (c *Community) AddCohort(k int, size, u float64) ecs.Entity {
	s := c.species[k]
	plant := components.Plant{Species: s.ID}
	plant.Geometry.Init(c.par, &s.traits, size)
	density := components.Density{U: u}
	rates := components.Rates{}

	e := c.mapper.NewEntity(&plant, &density, &rates)
	s.cohorts = append(s.cohorts, ecs.Entity{})
	copy(s.cohorts[1:], s.cohorts)
	s.cohorts[0] = e
	return e
}

// Cohort returns the components of cohort i of species k. The pointers are
// valid until the next structural change to the world.
func (c *Community) Cohort(k, i int) (*components.Plant, *components.Density, *components.Rates) {
	return c.mapper.Get(c.species[k].cohorts[i])
}

// SetDensity sets the density of cohort i of species k.
func (c *Community) SetDensity(k, i int, u float64) {
	_, d, _ := c.Cohort(k, i)
	d.U = u
}

// RemoveCohort deletes cohort i of species k.
func (c *Community) RemoveCohort(k, i int) {
	s := c.species[k]
	c.world.RemoveEntity(s.cohorts[i])
	s.cohorts = append(s.cohorts[:i], s.cohorts[i+1:]...)
}

// Prune removes cohorts whose density fell below threshold. The boundary
// cohort is always kept. It returns the number removed.
func (c *Community) Prune(threshold float64) int {
	removed := 0
	for k, s := range c.species {
		for i := len(s.cohorts) - 1; i >= 1; i-- {
			_, d, _ := c.Cohort(k, i)
			if d.U < threshold {
				c.RemoveCohort(k, i)
				removed++
			}
		}
	}
	return removed
}

// NumCohorts returns the number of cohorts over all species.
func (c *Community) NumCohorts() int {
	n := 0
	for _, s := range c.species {
		n += len(s.cohorts)
	}
	return n
}

// StateLen returns the length of the state vector.
func (c *Community) StateLen() int {
	return c.NumCohorts() * CohortWidth
}

// AppendState appends every cohort to dst, species by species in cohort
// order, and records each species' layout.
func (c *Community) AppendState(dst []float64) []float64 {
	for k, s := range c.species {
		s.layout = Layout{Offset: len(dst), Count: len(s.cohorts)}
		for i := range s.cohorts {
			var cs CohortState
			p, d, _ := c.Cohort(k, i)
			p.Geometry.State(cs.Geometry())
			cs[SlotDensity] = d.U
			cs[SlotSeedPool] = p.SeedPool
			dst = append(dst, cs[:]...)
		}
	}
	return dst
}

// LoadState copies the state vector back into the cohorts. The vector must
// match the current cohort count exactly.
func (c *Community) LoadState(v []float64) error {
	if len(v) != c.StateLen() {
		return fmt.Errorf("state vector has %d values, community needs %d: %w", len(v), c.StateLen(), simerr.ErrConsistency)
	}
	off := 0
	for k, s := range c.species {
		s.layout = Layout{Offset: off, Count: len(s.cohorts)}
		for i := range s.cohorts {
			cs := s.layout.Cohort(v, i)
			p, d, _ := c.Cohort(k, i)
			p.Geometry.SetState(cs.Geometry(), &s.traits)
			d.U = cs[SlotDensity]
			p.SeedPool = cs[SlotSeedPool]
		}
		off += s.layout.Len()
	}
	return nil
}

// WriteDerivatives fills dst, laid out like the last AppendState or
// LoadState, with the rates stored on each cohort.
func (c *Community) WriteDerivatives(dst []float64) error {
	if len(dst) != c.StateLen() {
		return fmt.Errorf("derivative vector has %d values, community needs %d: %w", len(dst), c.StateLen(), simerr.ErrConsistency)
	}
	for k, s := range c.species {
		for i := range s.cohorts {
			ds := s.layout.Cohort(dst, i)
			_, d, r := c.Cohort(k, i)
			r.Allocation.Derivatives(ds.Geometry())
			ds[SlotDensity] = -r.Mortality * d.U
			ds[SlotSeedPool] = r.Fecundity
		}
	}
	return nil
}

// ClearPatch applies a stand-clearing disturbance: every cohort except each
// species' boundary cohort loses its density and coarse roots and has its
// LAI reset. The solver state must be re-synced afterwards.
func (c *Community) ClearPatch() {
	for k, s := range c.species {
		for i := 1; i < len(s.cohorts); i++ {
			p, d, _ := c.Cohort(k, i)
			p.Geometry.SetCoarseRootMass(0, &s.traits)
			p.Geometry.SetLAI(p.Geometry.InitialLAI())
			d.U = 0
		}
	}
}

// CheckConsistency verifies the ODE-tracked wood pools of every cohort
// against their allometric values.
func (c *Community) CheckConsistency() error {
	for k, s := range c.species {
		for i := range s.cohorts {
			p, _, _ := c.Cohort(k, i)
			if err := p.Geometry.CheckConsistency(&s.traits, c.par.ConsistencyTol); err != nil {
				return fmt.Errorf("species %q cohort %d: %w", s.traits.Name, i, err)
			}
		}
	}
	return nil
}

// CohortStates returns a copy of species k's cohorts in cohort order.
func (c *Community) CohortStates(k int) []CohortState {
	s := c.species[k]
	out := make([]CohortState, len(s.cohorts))
	for i := range s.cohorts {
		p, d, _ := c.Cohort(k, i)
		p.Geometry.State(out[i].Geometry())
		out[i][SlotDensity] = d.U
		out[i][SlotSeedPool] = p.SeedPool
	}
	return out
}

// ReplaceCohorts discards species k's cohorts and rebuilds them from states,
// given in cohort order. The solver state must be re-synced afterwards.
func (c *Community) ReplaceCohorts(k int, states []CohortState) {
	s := c.species[k]
	for i := len(s.cohorts) - 1; i >= 0; i-- {
		c.RemoveCohort(k, i)
	}
	for i := len(states) - 1; i >= 0; i-- {
		st := &states[i]
		e := c.AddCohort(k, st[SlotSize], st[SlotDensity])
		p, _, _ := c.mapper.Get(e)
		p.Geometry.SetState(st.Geometry(), &s.traits)
		p.SeedPool = st[SlotSeedPool]
	}
}
