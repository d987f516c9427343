package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/plantfate/telemetry"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "results.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func stats(tm float64) telemetry.CommunityStats {
	return telemetry.CommunityStats{
		T:       tm,
		NInd:    3,
		Biomass: 10 + tm,
		Species: []telemetry.SpeciesStats{
			{Index: 0, Name: "a", NInd: 1, MeanHeight: 2},
			{Index: 1, Name: "b", NInd: 2, MeanHeight: telemetry.Missing},
		},
	}
}

func count(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestWriteStatsRows(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.WriteStats(ctx, stats(float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	if n := count(t, s, "fluxes"); n != 3 {
		t.Errorf("fluxes rows = %d, want 3", n)
	}
	if n := count(t, s, "species"); n != 6 {
		t.Errorf("species rows = %d, want 6", n)
	}

	var biomass float64
	if err := s.DB().QueryRow("SELECT biomass FROM fluxes WHERE t = 2").Scan(&biomass); err != nil {
		t.Fatal(err)
	}
	if biomass != 12 {
		t.Errorf("biomass at t=2 = %v, want 12", biomass)
	}
}

func TestWriteStatsReplacesSameTime(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if err := s.WriteStats(ctx, stats(1)); err != nil {
		t.Fatal(err)
	}
	again := stats(1)
	again.Biomass = 99
	if err := s.WriteStats(ctx, again); err != nil {
		t.Fatal(err)
	}
	if n := count(t, s, "fluxes"); n != 1 {
		t.Errorf("fluxes rows = %d, want 1", n)
	}
}

func TestMetaAndSnapshots(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if v, err := s.Meta(ctx, "seed"); err != nil || v != "" {
		t.Errorf("unset meta = %q, %v", v, err)
	}
	if err := s.SetMeta(ctx, "seed", "1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMeta(ctx, "seed", "2"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Meta(ctx, "seed"); v != "2" {
		t.Errorf("meta = %q, want 2", v)
	}

	if _, _, ok, err := s.LatestSnapshot(ctx); ok || err != nil {
		t.Errorf("expected no snapshot, got ok=%v err=%v", ok, err)
	}
	s.RecordSnapshot(ctx, 10, "a.zst")
	s.RecordSnapshot(ctx, 20, "b.zst")
	tm, path, ok, err := s.LatestSnapshot(ctx)
	if err != nil || !ok || tm != 20 || path != "b.zst" {
		t.Errorf("latest = %v %q %v %v", tm, path, ok, err)
	}
}
