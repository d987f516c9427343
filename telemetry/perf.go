package telemetry

import (
	"log/slog"
	"time"
)

// Phase is one timed part of a simulation step.
type Phase int

const (
	PhaseClimate Phase = iota
	PhaseSolver
	PhaseRecruitment
	PhaseDisturbance
	PhaseAggregate
	PhaseOutput
	numPhases

	noPhase Phase = -1
)

var phaseNames = [numPhases]string{"climate", "solver", "recruitment", "disturbance", "aggregate", "output"}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "none"
	}
	return phaseNames[p]
}

// PhaseTimes holds one duration per phase.
type PhaseTimes [numPhases]time.Duration

// PerfCollector tracks step and phase durations over a rolling window of
// steps.
type PerfCollector struct {
	now func() time.Time

	steps   []time.Duration
	phases  []PhaseTimes
	next    int
	filled  int
	current PhaseTimes

	stepStart  time.Time
	phaseStart time.Time
	phase      Phase
}

// NewPerfCollector creates a collector averaging over the last windowSize
// steps (60 if windowSize < 1).
func NewPerfCollector(windowSize int) *PerfCollector {
	return newPerfCollector(windowSize, time.Now)
}

func newPerfCollector(windowSize int, now func() time.Time) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		now:    now,
		steps:  make([]time.Duration, windowSize),
		phases: make([]PhaseTimes, windowSize),
		phase:  noPhase,
	}
}

// closePhase books the time since the last phase switch.
func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase != noPhase {
		p.current[p.phase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
}

// StartStep begins timing a new simulation step.
func (p *PerfCollector) StartStep() {
	if p == nil {
		return
	}
	p.stepStart = p.now()
	p.current = PhaseTimes{}
	p.phase = noPhase
}

// StartPhase ends the running phase and starts timing phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	if p == nil {
		return
	}
	p.closePhase(p.now())
	p.phase = phase
}

// EndStep finishes the step and records it in the window.
func (p *PerfCollector) EndStep() {
	if p == nil {
		return
	}
	now := p.now()
	p.closePhase(now)
	p.phase = noPhase

	p.steps[p.next] = now.Sub(p.stepStart)
	p.phases[p.next] = p.current
	p.next = (p.next + 1) % len(p.steps)
	p.filled = min(p.filled+1, len(p.steps))
}

// PerfStats summarises the window.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration

	PhaseAvg PhaseTimes
	PhasePct [numPhases]float64 // share of the average step

	StepsPerSecond float64
}

// Stats computes averages over the recorded steps.
func (p *PerfCollector) Stats() PerfStats {
	var s PerfStats
	if p == nil || p.filled == 0 {
		return s
	}

	var total time.Duration
	var sums PhaseTimes
	for i := range p.filled {
		d := p.steps[i]
		total += d
		if i == 0 || d < s.MinStepDuration {
			s.MinStepDuration = d
		}
		s.MaxStepDuration = max(s.MaxStepDuration, d)
		for ph, pd := range p.phases[i] {
			sums[ph] += pd
		}
	}

	n := time.Duration(p.filled)
	s.AvgStepDuration = total / n
	for ph := range sums {
		s.PhaseAvg[ph] = sums[ph] / n
		if s.AvgStepDuration > 0 {
			s.PhasePct[ph] = 100 * float64(s.PhaseAvg[ph]) / float64(s.AvgStepDuration)
		}
	}
	if s.AvgStepDuration > 0 {
		s.StepsPerSecond = float64(time.Second) / float64(s.AvgStepDuration)
	}
	return s
}

// LogStats logs the window summary, listing phases above 0.1%.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_step_us", s.AvgStepDuration.Microseconds(),
		"max_step_us", s.MaxStepDuration.Microseconds(),
		"steps_per_sec", int(s.StepsPerSecond),
	}
	for ph, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, Phase(ph).String()+"_pct", float64(int(pct*10))/10)
		}
	}
	slog.Info("perf", attrs...)
}

// PerfStatsCSV is one row of perf.csv.
type PerfStatsCSV struct {
	T              float64 `csv:"t"`
	AvgStepUS      int64   `csv:"avg_step_us"`
	MinStepUS      int64   `csv:"min_step_us"`
	MaxStepUS      int64   `csv:"max_step_us"`
	StepsPerSec    float64 `csv:"steps_per_sec"`
	ClimatePct     float64 `csv:"climate_pct"`
	SolverPct      float64 `csv:"solver_pct"`
	RecruitmentPct float64 `csv:"recruitment_pct"`
	DisturbancePct float64 `csv:"disturbance_pct"`
	AggregatePct   float64 `csv:"aggregate_pct"`
	OutputPct      float64 `csv:"output_pct"`
}

// ToCSV flattens the stats into a perf.csv row at simulation time t.
func (s PerfStats) ToCSV(t float64) PerfStatsCSV {
	return PerfStatsCSV{
		T:              t,
		AvgStepUS:      s.AvgStepDuration.Microseconds(),
		MinStepUS:      s.MinStepDuration.Microseconds(),
		MaxStepUS:      s.MaxStepDuration.Microseconds(),
		StepsPerSec:    s.StepsPerSecond,
		ClimatePct:     s.PhasePct[PhaseClimate],
		SolverPct:      s.PhasePct[PhaseSolver],
		RecruitmentPct: s.PhasePct[PhaseRecruitment],
		DisturbancePct: s.PhasePct[PhaseDisturbance],
		AggregatePct:   s.PhasePct[PhaseAggregate],
		OutputPct:      s.PhasePct[PhaseOutput],
	}
}
