// Package sim wires the climate, community, solver and reporting into one
// simulation context.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"

	"github.com/pthm-cable/plantfate/climate"
	"github.com/pthm-cable/plantfate/config"
	"github.com/pthm-cable/plantfate/population"
	"github.com/pthm-cable/plantfate/recruitment"
	"github.com/pthm-cable/plantfate/simerr"
	"github.com/pthm-cable/plantfate/snapshot"
	"github.com/pthm-cable/plantfate/solver"
	"github.com/pthm-cable/plantfate/store"
	"github.com/pthm-cable/plantfate/systems"
	"github.com/pthm-cable/plantfate/telemetry"
	"github.com/pthm-cable/plantfate/traits"
)

// Options holds run-time settings that are not part of the model config.
type Options struct {
	OutputDir     string         // overrides output.dir when set
	Resume        string         // checkpoint to resume from
	Forcing       climate.Source // overrides the configured climate when set
	LogStats      bool
	StatsCallback func(telemetry.CommunityStats)
}

// Simulation owns every component of a run.
type Simulation struct {
	cfg *config.Config

	forcing     climate.Source
	community   *population.Community
	canopy      *systems.CanopySystem
	physio      *systems.PhysiologySystem
	model       *model
	solver      *solver.Solver
	averagers   []*recruitment.MovingAverager
	disturbance *population.Disturbance

	aggOpts telemetry.AggregateOptions
	output  *telemetry.OutputManager
	store   *store.Store
	perf    *telemetry.PerfCollector

	snapshotDir   string
	nextReport    int // index of the next report time
	nextSnapshot  float64
	last          telemetry.CommunityStats
	logStats      bool
	statsCallback func(telemetry.CommunityStats)
}

// New builds a simulation at cfg.Simulation.TStart, or at the checkpoint
// time when resuming.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	s := &Simulation{
		cfg:           cfg,
		perf:          telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
	}

	quad, err := telemetry.ParseQuadrature(cfg.Telemetry.Quadrature)
	if err != nil {
		return nil, err
	}
	s.aggOpts = telemetry.AggregateOptions{MinBasalDiameter: cfg.Telemetry.MinBasalDiameter, Quadrature: quad}

	s.forcing = opts.Forcing
	if s.forcing == nil {
		if s.forcing, err = openForcing(cfg); err != nil {
			return nil, err
		}
	}

	table := traits.NewTable()
	for _, tr := range cfg.Derived.Community {
		if _, err := table.Add(tr); err != nil {
			return nil, err
		}
	}
	table.Freeze()

	s.community, err = population.New(table, &cfg.Plant)
	if err != nil {
		return nil, err
	}
	for id := range cfg.Derived.Community {
		if _, err := s.community.AddSpecies(traits.ID(id), cfg.Population.InitialSize, cfg.Population.InitialDensity); err != nil {
			return nil, err
		}
	}

	s.canopy = systems.NewCanopySystem(s.community.World(), cfg.Physiology.KLight)
	s.physio = systems.NewPhysiologySystem(s.community, cfg.Physiology, cfg.Mortality)
	s.model = &model{
		community:   s.community,
		canopy:      s.canopy,
		physio:      s.physio,
		forcing:     s.forcing,
		perf:        s.perf,
		recruitSize: cfg.Population.RecruitSize,
	}
	s.solver, err = solver.New(s.model, cfg.Simulation.TStart, solver.Options{
		Step:                cfg.Solver.Step,
		MinStep:             cfg.Solver.MinStep,
		ExtinctionThreshold: cfg.Population.ExtinctionThreshold,
	})
	if err != nil {
		return nil, err
	}

	s.averagers = make([]*recruitment.MovingAverager, s.community.NumSpecies())
	for k := range s.averagers {
		s.averagers[k] = recruitment.New(cfg.Recruitment.Window)
	}
	s.disturbance = population.NewDisturbance(cfg.Disturbance, cfg.Simulation.Seed)
	s.nextSnapshot = s.firstSnapshotAfter(cfg.Simulation.TStart)

	if opts.Resume != "" {
		snap, err := snapshot.Load(opts.Resume)
		if err != nil {
			return nil, err
		}
		if err := s.Restore(snap); err != nil {
			return nil, err
		}
	}

	if err := s.openOutputs(opts); err != nil {
		s.Close()
		return nil, err
	}

	slog.Info("simulation ready",
		"species", s.community.NumSpecies(),
		"t", s.solver.Time(),
		"t_end", cfg.Simulation.TEnd,
		"step", cfg.Solver.Step,
	)
	return s, nil
}

func openForcing(cfg *config.Config) (climate.Source, error) {
	if cfg.Climate.MetFile == "" {
		slog.Info("no forcing files, using constant climate", "state", climate.Default())
		return climate.Constant{State: climate.Default()}, nil
	}
	return climate.Open(cfg.Climate.MetFile, cfg.Climate.CO2File, climate.Options{
		ReferenceYear: cfg.Climate.ReferenceYear,
		Interpolation: cfg.Derived.Interpolation,
	})
}

func (s *Simulation) openOutputs(opts Options) error {
	dir := s.cfg.Output.Dir
	if opts.OutputDir != "" {
		dir = opts.OutputDir
	}

	var err error
	s.output, err = telemetry.NewOutputManager(dir, telemetry.OutputOptions{
		Cohorts: s.cfg.Telemetry.Cohorts,
		Append:  opts.Resume != "",
	})
	if err != nil {
		return err
	}
	if err := s.output.WriteConfig(s.cfg); err != nil {
		return err
	}
	root := s.output.Dir()
	if root == "" {
		return nil
	}

	s.snapshotDir = filepath.Join(root, "snapshots")
	if s.cfg.Output.SQLite != "" {
		s.store, err = store.Open(filepath.Join(root, s.cfg.Output.SQLite))
		if err != nil {
			return err
		}
		ctx := context.Background()
		if err := s.store.SetMeta(ctx, "seed", strconv.FormatInt(s.cfg.Simulation.Seed, 10)); err != nil {
			return err
		}
		if err := s.store.SetMeta(ctx, "species", strconv.Itoa(s.community.NumSpecies())); err != nil {
			return err
		}
	}
	return nil
}

// Time returns the current simulation time.
func (s *Simulation) Time() float64 {
	return s.solver.Time()
}

// Community exposes the simulated community.
func (s *Simulation) Community() *population.Community {
	return s.community
}

// Canopy exposes the canopy layering of the last rate evaluation.
func (s *Simulation) Canopy() *systems.CanopySystem {
	return s.canopy
}

// Last returns the most recent report.
func (s *Simulation) Last() telemetry.CommunityStats {
	return s.last
}

// BirthFlux returns the smoothed recruitment flux of species k.
func (s *Simulation) BirthFlux(k int) float64 {
	return s.averagers[k].Value()
}

// reportTime returns the time of report n.
func (s *Simulation) reportTime(n int) float64 {
	return s.cfg.Simulation.TStart + float64(n)*s.cfg.Simulation.ReportInterval
}

// afterStep checks the wood bookkeeping of the accepted state, then feeds
// the newborn flux of the finished step through the smoothing filters back
// into the solver's birth flux.
func (s *Simulation) afterStep(t float64) error {
	if err := s.community.CheckConsistency(); err != nil {
		return fmt.Errorf("after step to t=%v: %w", t, err)
	}

	s.perf.StartPhase(telemetry.PhaseRecruitment)
	defer s.perf.StartPhase(telemetry.PhaseSolver)

	newborns := s.solver.NewbornsOut()
	for k, v := range newborns {
		if err := s.averagers[k].Push(t, v); err != nil {
			return err
		}
		s.solver.SetInputBirthFlux(k, s.averagers[k].Value())
	}
	return nil
}

// Step advances the simulation to t, then aggregates, writes the report
// and applies any due disturbance.
func (s *Simulation) Step(t float64) error {
	s.perf.StartStep()
	s.perf.StartPhase(telemetry.PhaseSolver)
	if err := s.solver.StepTo(t, s.afterStep); err != nil {
		return err
	}

	s.perf.StartPhase(telemetry.PhaseAggregate)
	if err := s.report(); err != nil {
		return err
	}

	s.perf.StartPhase(telemetry.PhaseDisturbance)
	if s.disturbance.Apply(s.solver.Time(), s.community) {
		s.solver.CopyCohortsToState()
	}

	s.perf.StartPhase(telemetry.PhaseOutput)
	if err := s.maybeSnapshot(); err != nil {
		return err
	}
	s.perf.EndStep()
	return nil
}

// report refreshes the rates at the current state and writes the aggregate.
func (s *Simulation) report() error {
	t := s.solver.Time()
	clim, err := s.forcing.StateAt(t)
	if err != nil {
		return err
	}
	s.model.clim = clim
	s.model.refresh()
	s.last = telemetry.Aggregate(t, s.community, s.aggOpts)
	for k := range s.last.Species {
		s.last.Species[k].BirthFlux = s.BirthFlux(k)
	}

	if s.statsCallback != nil {
		s.statsCallback(s.last)
	}
	if s.logStats {
		s.last.LogStats()
	}

	s.perf.StartPhase(telemetry.PhaseOutput)
	refYear := s.cfg.Climate.ReferenceYear
	if err := s.output.WriteStats(s.last, refYear); err != nil {
		return err
	}
	if err := s.output.WriteCanopy(telemetry.NewCanopyRecords(t, s.canopy)); err != nil {
		return err
	}
	if s.output.CohortsEnabled() {
		if err := s.output.WriteCohorts(telemetry.NewCohortRecords(t, s.community)); err != nil {
			return err
		}
	}
	if err := s.output.WritePerf(s.perf.Stats(), t); err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.WriteStats(context.Background(), s.last); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) maybeSnapshot() error {
	every := s.cfg.Output.SnapshotEvery
	if every <= 0 || s.snapshotDir == "" {
		return nil
	}
	t := s.solver.Time()
	if t < s.nextSnapshot-1e-9 {
		return nil
	}
	for s.nextSnapshot <= t+1e-9 {
		s.nextSnapshot += every
	}

	path, err := snapshot.Save(s.Snapshot(), s.snapshotDir)
	if err != nil {
		return err
	}
	slog.Info("snapshot saved", "t", t, "path", path)
	if s.store != nil {
		return s.store.RecordSnapshot(context.Background(), t, path)
	}
	return nil
}

// firstSnapshotAfter returns the first checkpoint time after t.
func (s *Simulation) firstSnapshotAfter(t float64) float64 {
	every := s.cfg.Output.SnapshotEvery
	if every <= 0 {
		return math.Inf(1)
	}
	t0 := s.cfg.Simulation.TStart
	return t0 + (math.Floor((t-t0)/every+1e-9)+1)*every
}

// Run steps from the current time to t_end, reporting at every report
// interval. It stops early with the context's error when ctx is done.
func (s *Simulation) Run(ctx context.Context) error {
	t0 := s.solver.Time()
	if s.nextReport == 0 && t0 == s.cfg.Simulation.TStart {
		s.perf.StartStep()
		s.perf.StartPhase(telemetry.PhaseAggregate)
		if err := s.report(); err != nil {
			return err
		}
		s.perf.EndStep()
	}
	s.nextReport = int(math.Floor((t0-s.cfg.Simulation.TStart)/s.cfg.Simulation.ReportInterval+1e-9)) + 1

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := s.reportTime(s.nextReport)
		if t > s.cfg.Simulation.TEnd+1e-9 {
			break
		}
		if err := s.Step(t); err != nil {
			return fmt.Errorf("step to t=%v: %w", t, err)
		}
		s.nextReport++
	}
	s.perf.Stats().LogStats()
	return nil
}

// Snapshot captures the state needed to resume the run.
func (s *Simulation) Snapshot() *snapshot.Snapshot {
	snap := &snapshot.Snapshot{
		Header:           snapshot.Header{T: s.solver.Time()},
		RNGSeed:          s.cfg.Simulation.Seed,
		DisturbanceNext:  s.disturbance.Next(),
		DisturbanceDraws: s.disturbance.Draws(),
		Species:          make([]snapshot.SpeciesState, s.community.NumSpecies()),
	}
	for k := range snap.Species {
		snap.Species[k] = snapshot.SpeciesState{
			Name:     s.community.Species(k).Traits().Name,
			Cohorts:  s.community.CohortStates(k),
			Averager: s.averagers[k].Samples(),
		}
	}
	return snap
}

// Restore replaces the run state with a checkpoint. The species must match
// the configured community, and the climate is fast-forwarded to the
// checkpoint time.
func (s *Simulation) Restore(snap *snapshot.Snapshot) error {
	if len(snap.Species) != s.community.NumSpecies() {
		return fmt.Errorf("snapshot has %d species, config has %d: %w", len(snap.Species), s.community.NumSpecies(), simerr.ErrConfig)
	}
	if snap.RNGSeed != s.cfg.Simulation.Seed {
		slog.Warn("snapshot seed differs from config", "snapshot", snap.RNGSeed, "config", s.cfg.Simulation.Seed)
	}
	for k, sp := range snap.Species {
		if name := s.community.Species(k).Traits().Name; sp.Name != name {
			return fmt.Errorf("snapshot species %d is %q, config has %q: %w", k, sp.Name, name, simerr.ErrConfig)
		}
		if len(sp.Cohorts) == 0 {
			return fmt.Errorf("snapshot species %q has no cohorts: %w", sp.Name, simerr.ErrConsistency)
		}
	}

	t := snap.Header.T
	if _, err := s.forcing.StateAt(t); err != nil {
		return fmt.Errorf("fast-forwarding climate to t=%v: %w", t, err)
	}
	for k, sp := range snap.Species {
		s.community.ReplaceCohorts(k, sp.Cohorts)
		if err := s.averagers[k].Restore(sp.Averager); err != nil {
			return err
		}
		s.solver.SetInputBirthFlux(k, s.averagers[k].Value())
	}
	s.disturbance.Restore(snap.DisturbanceNext, snap.DisturbanceDraws)
	s.solver.SetTime(t)
	s.solver.CopyCohortsToState()
	s.nextSnapshot = s.firstSnapshotAfter(t)
	s.nextReport = int(math.Floor((t-s.cfg.Simulation.TStart)/s.cfg.Simulation.ReportInterval+1e-9)) + 1

	slog.Info("resumed from snapshot", "t", t, "cohorts", s.community.NumCohorts())
	return nil
}

// Close flushes and closes outputs.
func (s *Simulation) Close() error {
	var firstErr error
	if err := s.output.Close(); err != nil {
		firstErr = err
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
