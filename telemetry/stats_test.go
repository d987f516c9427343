package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestHeightPercentilesSkipsExtinct(t *testing.T) {
	s := CommunityStats{Species: []SpeciesStats{
		{MeanHeight: 4, NInd: 1},
		{MeanHeight: Missing},
		{MeanHeight: 2, NInd: 1},
	}}
	p10, p50, p90 := s.HeightPercentiles()
	if math.Abs(p10-2.2) > 1e-9 || math.Abs(p50-3) > 1e-9 || math.Abs(p90-3.8) > 1e-9 {
		t.Errorf("percentiles = %v %v %v, want 2.2 3 3.8", p10, p50, p90)
	}
	if got := s.Surviving(); got != 2 {
		t.Errorf("Surviving() = %d, want 2", got)
	}
}

func TestCalendarDate(t *testing.T) {
	tests := []struct {
		t    float64
		year int
		doy  int
	}{
		{0, 2000, 1},
		{0.5, 2000, 183},
		{3.001, 2003, 1},
	}
	for _, tt := range tests {
		y, d := CalendarDate(tt.t, 2000)
		if y != tt.year || d != tt.doy {
			t.Errorf("CalendarDate(%v) = %d/%d, want %d/%d", tt.t, y, d, tt.year, tt.doy)
		}
	}
}

func TestFluxRecordUnits(t *testing.T) {
	s := CommunityStats{T: 1, GPP: daysPerYear, LeafMass: 2, CoarseRootMass: 1, FineRootMass: 0.5, Trans: daysPerYear * 3}
	r := NewFluxRecord(s, 2000)
	if r.Year != 2001 {
		t.Errorf("year = %d, want 2001", r.Year)
	}
	if math.Abs(r.GPP-kgBiomassToGC) > 1e-9 {
		t.Errorf("GPP = %v, want %v gC/m2/d", r.GPP, kgBiomassToGC)
	}
	if math.Abs(r.CL-2*kgBiomassToGC) > 1e-9 {
		t.Errorf("CL = %v", r.CL)
	}
	if math.Abs(r.CR-1.5*kgBiomassToGC) > 1e-9 {
		t.Errorf("CR = %v", r.CR)
	}
	if math.Abs(r.ET-3) > 1e-9 {
		t.Errorf("ET = %v, want 3", r.ET)
	}
}

func TestStructureRecordsMissingSLA(t *testing.T) {
	s := CommunityStats{Species: []SpeciesStats{{Index: 0, LMA: 0.1}, {Index: 1}}}
	rows := NewStructureRecords(s, 2000)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if math.Abs(rows[1].SLA-10) > 1e-9 {
		t.Errorf("SLA = %v, want 10", rows[1].SLA)
	}
	if rows[2].SLA != Missing {
		t.Errorf("SLA without LMA = %v, want Missing", rows[2].SLA)
	}
}

func TestCommunityStructureRowWithoutIndividuals(t *testing.T) {
	s := CommunityStats{MeanHeight: Missing, Species: []SpeciesStats{{Index: 0, LMA: 0.1}}}
	row := NewStructureRecords(s, 2000)[0]
	for name, v := range map[string]float64{"PH": row.PH, "MH": row.MH, "WD": row.WD, "MO": row.MO, "SLA": row.SLA, "P50": row.P50} {
		if v != Missing {
			t.Errorf("%s = %v, want Missing", name, v)
		}
	}
}
