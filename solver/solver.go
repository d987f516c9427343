// Package solver integrates a structured population with the characteristic
// cohort method: every cohort is a point that moves along its growth curve
// while its density decays with mortality, and new cohorts enter at the
// boundary with the birth flux.
package solver

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/plantfate/ode"
	"github.com/pthm-cable/plantfate/simerr"
)

// Model is the population the solver integrates.
type Model interface {
	NumSpecies() int
	// AppendState appends the current state vector to dst.
	AppendState(dst []float64) []float64
	// Derivatives loads state into the model and writes its time derivative.
	Derivatives(t float64, state, rates []float64) error
	// Newborns returns the recruitment flux of species k at the last
	// Derivatives call.
	Newborns(k int) float64
	// InsertCohort adds a boundary cohort to species k with density u.
	InsertCohort(k int, u float64)
	// Prune removes cohorts with density below threshold.
	Prune(threshold float64) int
}

// StepBeginner is implemented by models that prepare per-step inputs, such
// as forcing, before the stages of a step are evaluated.
type StepBeginner interface {
	BeginStep(t float64) error
}

// EventDetector is implemented by models with discontinuities in their
// rates. A step that crosses one is halved down to MinStep.
type EventDetector interface {
	EventCrossed(before, after []float64) bool
}

// Options configures the solver.
type Options struct {
	Step                float64 // outer step (yr)
	MinStep             float64 // smallest step when refining around events
	ExtinctionThreshold float64 // density below which cohorts are removed
}

// Solver advances a Model in time.
type Solver struct {
	model Model
	opts  Options
	rk    ode.RK4

	t     float64
	state []float64
	next  []float64
	rates []float64

	birthFlux  []float64
	newborns   []float64
	newbornDur float64
}

// New creates a solver at time t0 with the model's current state.
func New(m Model, t0 float64, opts Options) (*Solver, error) {
	if opts.Step <= 0 {
		return nil, fmt.Errorf("solver step must be positive: %w", simerr.ErrConfig)
	}
	if opts.MinStep <= 0 || opts.MinStep > opts.Step {
		opts.MinStep = opts.Step
	}
	n := m.NumSpecies()
	s := &Solver{
		model:     m,
		opts:      opts,
		t:         t0,
		birthFlux: make([]float64, n),
		newborns:  make([]float64, n),
	}
	s.CopyCohortsToState()
	return s, nil
}

// Time returns the current solver time.
func (s *Solver) Time() float64 {
	return s.t
}

// SetTime moves the clock without integrating, e.g. when resuming.
func (s *Solver) SetTime(t float64) {
	s.t = t
}

// State returns the current state vector. It is owned by the solver.
func (s *Solver) State() []float64 {
	return s.state
}

// CopyCohortsToState re-reads the state vector from the model. Call it after
// changing cohorts outside the solver.
func (s *Solver) CopyCohortsToState() {
	s.state = s.model.AppendState(s.state[:0])
}

// SetInputBirthFlux sets the birth flux used for new boundary cohorts of
// species k.
func (s *Solver) SetInputBirthFlux(k int, v float64) {
	s.birthFlux[k] = v
}

// NewbornsOut returns the mean newborn flux of each species since the last
// call and resets the accumulators.
func (s *Solver) NewbornsOut() []float64 {
	out := make([]float64, len(s.newborns))
	if s.newbornDur > 0 {
		for k, v := range s.newborns {
			out[k] = v / s.newbornDur
		}
	}
	clear(s.newborns)
	s.newbornDur = 0
	return out
}

func (s *Solver) resize() {
	n := len(s.state)
	if cap(s.next) < n {
		s.next = make([]float64, n)
		s.rates = make([]float64, n)
	}
	s.next, s.rates = s.next[:n], s.rates[:n]
}

// StepTo integrates until time t, calling afterStep after every step.
func (s *Solver) StepTo(t float64, afterStep func(t float64) error) error {
	const eps = 1e-12
	for s.t < t-eps {
		// Absorb rounding in the accumulated time into the last step.
		h := t - s.t
		if h > s.opts.Step*(1+1e-9) {
			h = s.opts.Step
		}
		if err := s.step(h); err != nil {
			return err
		}
		if afterStep != nil {
			if err := afterStep(s.t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Solver) step(h float64) error {
	if sb, ok := s.model.(StepBeginner); ok {
		if err := sb.BeginStep(s.t); err != nil {
			return err
		}
	}
	s.resize()

	ed, hasEvents := s.model.(EventDetector)
	for {
		if err := s.rk.Step(s.model.Derivatives, s.t, h, s.state, s.next); err != nil {
			return fmt.Errorf("integrating from t=%v: %w", s.t, err)
		}
		if hasEvents && h > s.opts.MinStep && ed.EventCrossed(s.state, s.next) {
			h = max(h/2, s.opts.MinStep)
			continue
		}
		break
	}
	s.t += h
	copy(s.state, s.next)

	// Refresh rates at the accepted state before reading newborns.
	if err := s.model.Derivatives(s.t, s.state, s.rates); err != nil {
		return fmt.Errorf("evaluating rates at t=%v: %w", s.t, err)
	}
	for k := range s.newborns {
		s.newborns[k] += s.model.Newborns(k) * h
	}
	s.newbornDur += h

	for k := range s.birthFlux {
		s.model.InsertCohort(k, s.birthFlux[k]*h)
	}
	if n := s.model.Prune(s.opts.ExtinctionThreshold); n > 0 {
		slog.Debug("pruned cohorts", "t", s.t, "n", n)
	}
	s.CopyCohortsToState()
	return nil
}
