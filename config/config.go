// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/plantfate/climate"
	"github.com/pthm-cable/plantfate/geometry"
	"github.com/pthm-cable/plantfate/population"
	"github.com/pthm-cable/plantfate/simerr"
	"github.com/pthm-cable/plantfate/systems"
	"github.com/pthm-cable/plantfate/traits"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation  SimulationConfig             `yaml:"simulation"`
	Climate     ClimateConfig                `yaml:"climate"`
	Plant       geometry.Params              `yaml:"plant"`
	Physiology  systems.PhysiologyParams     `yaml:"physiology"`
	Mortality   systems.MortalityParams      `yaml:"mortality"`
	Species     []traits.Traits              `yaml:"species"`
	TraitsFile  string                       `yaml:"traits_file"` // CSV trait table, overrides species
	NumSpecies  int                          `yaml:"num_species"` // first N species form the community (0 = all)
	Population  PopulationConfig             `yaml:"population"`
	Solver      SolverConfig                 `yaml:"solver"`
	Recruitment RecruitmentConfig            `yaml:"recruitment"`
	Disturbance population.DisturbanceConfig `yaml:"disturbance"`
	Telemetry   TelemetryConfig              `yaml:"telemetry"`
	Output      OutputConfig                 `yaml:"output"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds the run window and seed.
type SimulationConfig struct {
	TStart         float64 `yaml:"t_start"`         // years since the reference year
	TEnd           float64 `yaml:"t_end"`
	ReportInterval float64 `yaml:"report_interval"` // years between reports
	Seed           int64   `yaml:"seed"`
}

// ClimateConfig selects the forcing files. Without a met file the run uses
// constant default conditions.
type ClimateConfig struct {
	MetFile       string `yaml:"met_file"`
	CO2File       string `yaml:"co2_file"`
	Interpolation string `yaml:"interpolation"` // hold or linear
	ReferenceYear int    `yaml:"reference_year"`
}

// PopulationConfig holds the initial and boundary cohort sizes.
type PopulationConfig struct {
	InitialSize         float64 `yaml:"initial_size"`    // founder diameter (m)
	InitialDensity      float64 `yaml:"initial_density"` // founder density (m-2)
	RecruitSize         float64 `yaml:"recruit_size"`    // diameter of boundary cohorts (m)
	ExtinctionThreshold float64 `yaml:"extinction_threshold"`
}

// SolverConfig holds reference solver step sizes (yr).
type SolverConfig struct {
	Step    float64 `yaml:"step"`
	MinStep float64 `yaml:"min_step"`
}

// RecruitmentConfig holds the seed-rain smoothing window.
type RecruitmentConfig struct {
	Window float64 `yaml:"window"` // years
}

// TelemetryConfig holds aggregation and reporting parameters.
type TelemetryConfig struct {
	MinBasalDiameter    float64 `yaml:"min_basal_diameter"`
	Quadrature          string  `yaml:"quadrature"` // sum or trapezoid
	Cohorts             bool    `yaml:"cohorts"`    // write cohorts.csv
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
}

// OutputConfig holds output destinations.
type OutputConfig struct {
	Dir           string  `yaml:"dir"`
	SQLite        string  `yaml:"sqlite"`         // results database file, relative to dir
	SnapshotEvery float64 `yaml:"snapshot_every"` // years between checkpoints (0 = never)
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Interpolation climate.Interpolation
	Coordination  traits.Coordination
	Community     []traits.Traits // coordinated traits of the simulated species
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w: %w", simerr.ErrConfig, err)
		}
		// Only overwrites fields present in the file. A species list in the
		// file replaces the default list.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w: %w", simerr.ErrConfig, err)
		}
	}

	if cfg.TraitsFile != "" {
		rows, err := traits.ReadCSV(cfg.TraitsFile)
		if err != nil {
			return nil, err
		}
		cfg.Species = rows
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	interp, err := climate.ParseInterpolation(c.Climate.Interpolation)
	if err != nil {
		return err
	}
	c.Derived.Interpolation = interp

	if c.Climate.ReferenceYear == 0 {
		c.Climate.ReferenceYear = climate.DefaultReferenceYear
	}
	if c.Population.RecruitSize == 0 {
		c.Population.RecruitSize = c.Population.InitialSize
	}
	if c.Solver.MinStep == 0 {
		c.Solver.MinStep = c.Solver.Step / 64
	}

	c.Derived.Coordination = traits.Coordination{
		A:           c.Plant.A,
		FHMat:       c.Plant.FHMat,
		LMARef:      c.Plant.LMARef,
		LLExponent:  c.Plant.LLExponent,
		DefaultZeta: c.Plant.DefaultZeta,
	}
	species := c.Species
	if c.NumSpecies > 0 && c.NumSpecies < len(species) {
		species = species[:c.NumSpecies]
	}
	c.Derived.Community = make([]traits.Traits, len(species))
	for i, tr := range species {
		c.Derived.Community[i] = tr.Coordinate(c.Derived.Coordination)
	}
	return nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if err := c.Plant.Validate(); err != nil {
		return err
	}
	switch {
	case c.Simulation.TEnd <= c.Simulation.TStart:
		return fmt.Errorf("t_end %v must be after t_start %v: %w", c.Simulation.TEnd, c.Simulation.TStart, simerr.ErrConfig)
	case c.Simulation.ReportInterval <= 0:
		return fmt.Errorf("report_interval must be positive: %w", simerr.ErrConfig)
	case c.Solver.Step <= 0:
		return fmt.Errorf("solver step must be positive: %w", simerr.ErrConfig)
	case c.Solver.MinStep <= 0 || c.Solver.MinStep > c.Solver.Step:
		return fmt.Errorf("solver min_step %v outside (0, step]: %w", c.Solver.MinStep, simerr.ErrConfig)
	case c.Recruitment.Window <= 0:
		return fmt.Errorf("recruitment window must be positive: %w", simerr.ErrConfig)
	case c.Population.InitialSize <= 0 || c.Population.RecruitSize <= 0:
		return fmt.Errorf("initial and recruit sizes must be positive: %w", simerr.ErrConfig)
	case c.Population.InitialDensity < 0 || c.Population.ExtinctionThreshold < 0:
		return fmt.Errorf("densities must not be negative: %w", simerr.ErrConfig)
	case (c.Climate.MetFile == "") != (c.Climate.CO2File == ""):
		return fmt.Errorf("met_file and co2_file must be given together: %w", simerr.ErrConfig)
	case len(c.Derived.Community) == 0:
		return fmt.Errorf("no species configured: %w", simerr.ErrConfig)
	case c.Disturbance.Enabled && c.Disturbance.Mean <= c.Disturbance.Jitter:
		return fmt.Errorf("disturbance mean must exceed jitter: %w", simerr.ErrConfig)
	case c.Physiology.SeedMass <= 0:
		return fmt.Errorf("seed_mass must be positive: %w", simerr.ErrConfig)
	}
	for _, tr := range c.Derived.Community {
		if err := tr.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
