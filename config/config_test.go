package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/plantfate/climate"
	"github.com/pthm-cable/plantfate/simerr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("embedded defaults: %v", err)
	}
	if cfg.Recruitment.Window != 300 {
		t.Errorf("window = %v, want 300", cfg.Recruitment.Window)
	}
	if cfg.Derived.Interpolation != climate.InterpHold {
		t.Errorf("interpolation = %v, want hold", cfg.Derived.Interpolation)
	}
	if len(cfg.Derived.Community) != 3 {
		t.Fatalf("expected 3 default species, got %d", len(cfg.Derived.Community))
	}
	for _, tr := range cfg.Derived.Community {
		if tr.DMat <= 0 || tr.LeafLifespan <= 0 {
			t.Errorf("species %q not coordinated: %+v", tr.Name, tr)
		}
		if math.Abs(tr.Zeta-cfg.Plant.DefaultZeta) > 1e-12 {
			t.Errorf("species %q zeta = %v, want default", tr.Name, tr.Zeta)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeFile(t, "cfg.yaml", `
simulation:
  t_end: 50
climate:
  interpolation: linear
species:
  - name: only
    lma: 0.1
    wood_density: 600
    hmat: 20
    p50_xylem: -2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulation.TEnd != 50 || cfg.Simulation.ReportInterval != 1 {
		t.Errorf("merge failed: %+v", cfg.Simulation)
	}
	if cfg.Derived.Interpolation != climate.InterpLinear {
		t.Errorf("interpolation = %v, want linear", cfg.Derived.Interpolation)
	}
	if len(cfg.Derived.Community) != 1 || cfg.Derived.Community[0].Name != "only" {
		t.Errorf("species list not replaced: %+v", cfg.Derived.Community)
	}
}

func TestLoadTraitsFile(t *testing.T) {
	traitsPath := writeFile(t, "traits.csv", "species,lma,wood_density,hmat,p50_xylem,zeta\n"+
		"a,0.1,500,15,-1.5,0.15\n"+
		"b,0.2,700,25,-3,0.2\n"+
		"c,0.3,900,35,-4,0.25\n")
	path := writeFile(t, "cfg.yaml", "traits_file: "+traitsPath+"\nnum_species: 2\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Derived.Community) != 2 {
		t.Fatalf("expected first 2 species, got %d", len(cfg.Derived.Community))
	}
	if cfg.Derived.Community[1].Name != "b" || cfg.Derived.Community[1].Zeta != 0.2 {
		t.Errorf("unexpected species %+v", cfg.Derived.Community[1])
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"non-positive window", "recruitment:\n  window: 0\n"},
		{"unknown interpolation", "climate:\n  interpolation: cubic\n"},
		{"no species", "species: []\n"},
		{"end before start", "simulation:\n  t_start: 10\n  t_end: 5\n"},
		{"met without co2", "climate:\n  met_file: met.csv\n"},
		{"bad species", "species:\n  - name: x\n    lma: 0.1\n    wood_density: 600\n    hmat: 20\n    p50_xylem: 1\n"},
		{"jitter too wide", "disturbance:\n  enabled: true\n  mean: 10\n  jitter: 20\n"},
		{"min step above step", "solver:\n  step: 0.1\n  min_step: 0.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "cfg.yaml", tt.yaml))
			if !errors.Is(err, simerr.ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, simerr.ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Simulation.TEnd = 123
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Simulation.TEnd != 123 || len(back.Derived.Community) != len(cfg.Derived.Community) {
		t.Errorf("round trip lost values: %+v", back.Simulation)
	}
}

func TestCfgBeforeInitPanics(t *testing.T) {
	global = nil
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Cfg()
}
