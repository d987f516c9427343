// Package store keeps run results in a SQLite database so that runs can be
// queried without parsing the CSV reports.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/pthm-cable/plantfate/telemetry"
)

// Store is a results database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures its schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS fluxes (
			t REAL PRIMARY KEY,
			n_ind REAL NOT NULL,
			biomass REAL NOT NULL,
			basal_area REAL NOT NULL,
			lai REAL NOT NULL,
			gpp REAL NOT NULL,
			npp REAL NOT NULL,
			rau REAL NOT NULL,
			trans REAL NOT NULL,
			max_height REAL NOT NULL,
			cwm_hmat REAL NOT NULL,
			cwm_lma REAL NOT NULL,
			cwm_wood_density REAL NOT NULL,
			cwm_p50 REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS species (
			t REAL NOT NULL,
			species INTEGER NOT NULL,
			name TEXT NOT NULL,
			n_ind REAL NOT NULL,
			biomass REAL NOT NULL,
			basal_area REAL NOT NULL,
			seeds REAL NOT NULL,
			birth_flux REAL NOT NULL,
			mean_height REAL NOT NULL,
			PRIMARY KEY (t, species)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			t REAL PRIMARY KEY,
			path TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

// SetMeta stores a run-level key/value pair, replacing an earlier value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("store meta %q: %w", key, err)
	}
	return nil
}

// Meta returns a run-level value, or "" if unset.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// WriteStats records one report. A report at an existing time replaces the
// earlier rows, so resumed runs do not duplicate results.
func (s *Store) WriteStats(ctx context.Context, cs telemetry.CommunityStats) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO fluxes
		 (t, n_ind, biomass, basal_area, lai, gpp, npp, rau, trans, max_height,
		  cwm_hmat, cwm_lma, cwm_wood_density, cwm_p50)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cs.T, cs.NInd, cs.Biomass, cs.BasalArea, cs.LAI, cs.GPP, cs.NPP, cs.RAu, cs.Trans, cs.MaxHeight,
		cs.CWM.HMat, cs.CWM.LMA, cs.CWM.WoodDensity, cs.CWM.P50)
	if err != nil {
		return fmt.Errorf("store fluxes at t=%v: %w", cs.T, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO species
		 (t, species, name, n_ind, biomass, basal_area, seeds, birth_flux, mean_height)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store species: %w", err)
	}
	defer stmt.Close()
	for _, sp := range cs.Species {
		if _, err := stmt.ExecContext(ctx, cs.T, sp.Index, sp.Name, sp.NInd, sp.Biomass, sp.BasalArea, sp.Seeds, sp.BirthFlux, sp.MeanHeight); err != nil {
			return fmt.Errorf("store species %q at t=%v: %w", sp.Name, cs.T, err)
		}
	}
	return tx.Commit()
}

// RecordSnapshot indexes a checkpoint file.
func (s *Store) RecordSnapshot(ctx context.Context, t float64, path string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO snapshots (t, path) VALUES (?, ?)`, t, path)
	if err != nil {
		return fmt.Errorf("store snapshot at t=%v: %w", t, err)
	}
	return nil
}

// LatestSnapshot returns the newest indexed checkpoint, or ok=false if none.
func (s *Store) LatestSnapshot(ctx context.Context) (t float64, path string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT t, path FROM snapshots ORDER BY t DESC LIMIT 1`).Scan(&t, &path)
	if err == sql.ErrNoRows {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	return t, path, true, nil
}

// DB exposes the underlying handle for ad-hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database. It is safe on a nil Store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
