package sim

import (
	"github.com/pthm-cable/plantfate/climate"
	"github.com/pthm-cable/plantfate/population"
	"github.com/pthm-cable/plantfate/systems"
	"github.com/pthm-cable/plantfate/telemetry"
)

// model couples the community to the solver. Each derivative evaluation
// loads the stage state into the cohorts, lays out the canopy, and
// recomputes physiology under the forcing fetched at the start of the step.
type model struct {
	community *population.Community
	canopy    *systems.CanopySystem
	physio    *systems.PhysiologySystem
	forcing   climate.Source
	perf      *telemetry.PerfCollector

	clim        climate.State
	recruitSize float64
}

func (m *model) NumSpecies() int {
	return m.community.NumSpecies()
}

func (m *model) AppendState(dst []float64) []float64 {
	return m.community.AppendState(dst)
}

// BeginStep fetches the forcing once per step so that RK stages and event
// refinement never query the climate backwards.
func (m *model) BeginStep(t float64) error {
	m.perf.StartPhase(telemetry.PhaseClimate)
	defer m.perf.StartPhase(telemetry.PhaseSolver)

	st, err := m.forcing.StateAt(t)
	if err != nil {
		return err
	}
	m.clim = st
	return nil
}

func (m *model) Derivatives(_ float64, state, rates []float64) error {
	if err := m.community.LoadState(state); err != nil {
		return err
	}
	m.refresh()
	return m.community.WriteDerivatives(rates)
}

// refresh recomputes light and rates for the cohorts as they are.
func (m *model) refresh() {
	m.canopy.Update()
	m.physio.Update(m.clim)
}

func (m *model) Newborns(k int) float64 {
	return m.physio.Newborns(k)
}

func (m *model) InsertCohort(k int, u float64) {
	m.community.AddCohort(k, m.recruitSize, u)
}

func (m *model) Prune(threshold float64) int {
	return m.community.Prune(threshold)
}

// EventCrossed reports whether any cohort reached reproductive maturity
// between the two states.
func (m *model) EventCrossed(before, after []float64) bool {
	for k := 0; k < m.community.NumSpecies(); k++ {
		sp := m.community.Species(k)
		dmat := sp.Traits().DMat
		l := sp.Layout()
		for i := 0; i < l.Count; i++ {
			b := l.Cohort(before, i)[population.SlotSize]
			a := l.Cohort(after, i)[population.SlotSize]
			if b < dmat && a >= dmat {
				return true
			}
		}
	}
	return false
}
