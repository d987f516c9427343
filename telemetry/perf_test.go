package telemetry

import (
	"math"
	"testing"
	"time"
)

// fakeClock advances only when told to.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestPerfCollectorPhaseTimes(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	pc := newPerfCollector(10, clock.now)

	for range 4 {
		pc.StartStep()
		pc.StartPhase(PhaseClimate)
		clock.advance(100 * time.Microsecond)
		pc.StartPhase(PhaseSolver)
		clock.advance(300 * time.Microsecond)
		pc.EndStep()
	}

	s := pc.Stats()
	if s.AvgStepDuration != 400*time.Microsecond {
		t.Errorf("avg step = %v, want 400us", s.AvgStepDuration)
	}
	if s.PhaseAvg[PhaseClimate] != 100*time.Microsecond || s.PhaseAvg[PhaseSolver] != 300*time.Microsecond {
		t.Errorf("phase averages = %v", s.PhaseAvg)
	}
	if math.Abs(s.PhasePct[PhaseClimate]-25) > 1e-9 || math.Abs(s.PhasePct[PhaseSolver]-75) > 1e-9 {
		t.Errorf("phase pcts = %v, want 25/75", s.PhasePct)
	}
	if math.Abs(s.StepsPerSecond-2500) > 1e-9 {
		t.Errorf("steps/s = %v, want 2500", s.StepsPerSecond)
	}
}

func TestPerfCollectorNestedPhaseSwitch(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	pc := newPerfCollector(10, clock.now)

	// Recruitment runs inside the solver phase and hands back to it.
	pc.StartStep()
	pc.StartPhase(PhaseSolver)
	clock.advance(2 * time.Millisecond)
	pc.StartPhase(PhaseRecruitment)
	clock.advance(time.Millisecond)
	pc.StartPhase(PhaseSolver)
	clock.advance(2 * time.Millisecond)
	pc.EndStep()

	s := pc.Stats()
	if s.PhaseAvg[PhaseSolver] != 4*time.Millisecond || s.PhaseAvg[PhaseRecruitment] != time.Millisecond {
		t.Errorf("phase averages = %v", s.PhaseAvg)
	}
}

func TestPerfCollectorRollingWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	pc := newPerfCollector(3, clock.now)

	for i := 1; i <= 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseSolver)
		clock.advance(time.Duration(i) * time.Millisecond)
		pc.EndStep()
	}

	// Only steps 3, 4 and 5 remain.
	s := pc.Stats()
	if s.AvgStepDuration != 4*time.Millisecond {
		t.Errorf("avg step = %v, want 4ms", s.AvgStepDuration)
	}
	if s.MinStepDuration != 3*time.Millisecond || s.MaxStepDuration != 5*time.Millisecond {
		t.Errorf("min/max = %v/%v, want 3ms/5ms", s.MinStepDuration, s.MaxStepDuration)
	}
}

func TestPerfCollectorEmptyAndNil(t *testing.T) {
	if s := NewPerfCollector(0).Stats(); s.AvgStepDuration != 0 || s.StepsPerSecond != 0 {
		t.Errorf("empty collector stats = %+v", s)
	}

	var pc *PerfCollector
	pc.StartStep()
	pc.StartPhase(PhaseOutput)
	pc.EndStep()
	if s := pc.Stats(); s.AvgStepDuration != 0 {
		t.Errorf("nil collector stats = %+v", s)
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseClimate, "climate"},
		{PhaseOutput, "output"},
		{noPhase, "none"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(tt.phase), got, tt.want)
		}
	}
}

func TestPerfStatsToCSV(t *testing.T) {
	var s PerfStats
	s.AvgStepDuration = 2 * time.Millisecond
	s.PhasePct[PhaseSolver] = 80
	s.PhasePct[PhaseOutput] = 5

	row := s.ToCSV(3.5)
	if row.T != 3.5 || row.AvgStepUS != 2000 {
		t.Errorf("row = %+v", row)
	}
	if row.SolverPct != 80 || row.OutputPct != 5 || row.ClimatePct != 0 {
		t.Errorf("phase pcts = %+v", row)
	}
}
