package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pthm-cable/plantfate/config"
)

// csvFile is an output CSV whose header is written with the first records.
type csvFile struct {
	name          string
	f             *os.File
	headerWritten bool
}

func openCSV(dir, name string, appendMode bool) (*csvFile, error) {
	path := filepath.Join(dir, name)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	cf := &csvFile{name: name, f: f}
	if appendMode {
		if info, err := f.Stat(); err == nil && info.Size() > 0 {
			cf.headerWritten = true
		}
	}
	return cf, nil
}

// writeRecords writes the header on first use and plain rows afterwards.
func writeRecords[T any](cf *csvFile, records []T) error {
	if cf == nil || len(records) == 0 {
		return nil
	}
	if !cf.headerWritten {
		if err := gocsv.Marshal(records, cf.f); err != nil {
			return fmt.Errorf("writing %s: %w", cf.name, err)
		}
		cf.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, cf.f); err != nil {
		return fmt.Errorf("writing %s: %w", cf.name, err)
	}
	return nil
}

// OutputOptions selects optional outputs.
type OutputOptions struct {
	Cohorts bool // write cohorts.csv
	Append  bool // continue existing files instead of truncating them
}

// OutputManager handles structured experiment output with CSV logging.
type OutputManager struct {
	dir       string
	fluxes    *csvFile
	structure *csvFile
	species   *csvFile
	canopy    *csvFile
	cohorts   *csvFile
	perf      *csvFile
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string, opts OutputOptions) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	files := []struct {
		dst  **csvFile
		name string
	}{
		{&om.fluxes, "fluxes.csv"},
		{&om.structure, "structure.csv"},
		{&om.species, "species.csv"},
		{&om.canopy, "canopy.csv"},
		{&om.perf, "perf.csv"},
	}
	if opts.Cohorts {
		files = append(files, struct {
			dst  **csvFile
			name string
		}{&om.cohorts, "cohorts.csv"})
	}
	for _, file := range files {
		cf, err := openCSV(dir, file.name, opts.Append)
		if err != nil {
			om.Close()
			return nil, err
		}
		*file.dst = cf
	}
	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	configPath := filepath.Join(om.dir, "config.yaml")
	return cfg.WriteYAML(configPath)
}

// WriteStats writes one report of community stats to fluxes.csv,
// structure.csv and species.csv.
func (om *OutputManager) WriteStats(s CommunityStats, refYear int) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(om.fluxes, []FluxRecord{NewFluxRecord(s, refYear)}); err != nil {
		return err
	}
	if err := writeRecords(om.structure, NewStructureRecords(s, refYear)); err != nil {
		return err
	}
	return writeRecords(om.species, NewSpeciesRecords(s))
}

// WriteCanopy writes the canopy layer structure.
func (om *OutputManager) WriteCanopy(records []CanopyRecord) error {
	if om == nil {
		return nil
	}
	return writeRecords(om.canopy, records)
}

// WriteCohorts writes a cohort dump if cohorts.csv is enabled.
func (om *OutputManager) WriteCohorts(records []CohortRecord) error {
	if om == nil {
		return nil
	}
	return writeRecords(om.cohorts, records)
}

// CohortsEnabled reports whether cohorts.csv is being written.
func (om *OutputManager) CohortsEnabled() bool {
	return om != nil && om.cohorts != nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, t float64) error {
	if om == nil {
		return nil
	}
	return writeRecords(om.perf, []PerfStatsCSV{stats.ToCSV(t)})
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, cf := range []*csvFile{om.fluxes, om.structure, om.species, om.canopy, om.cohorts, om.perf} {
		if cf == nil {
			continue
		}
		if err := cf.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
