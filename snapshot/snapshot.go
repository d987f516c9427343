// Package snapshot writes and reads zstd-compressed checkpoints of a
// running simulation.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/pthm-cable/plantfate/population"
	"github.com/pthm-cable/plantfate/recruitment"
	"github.com/pthm-cable/plantfate/simerr"
)

// Version is incremented when the format changes.
const Version = 1

// Header is the first line of a checkpoint, readable without decoding the body.
type Header struct {
	Version int     `json:"version"`
	T       float64 `json:"t"`
	Species int     `json:"species"`
}

// Snapshot holds the complete simulation state needed to resume a run.
type Snapshot struct {
	Header Header `json:"header"`

	RNGSeed          int64   `json:"rng_seed"`
	DisturbanceNext  float64 `json:"disturbance_next"`
	DisturbanceDraws int     `json:"disturbance_draws"`

	Species []SpeciesState `json:"species"`
}

// SpeciesState holds one species' cohorts and recruitment history.
type SpeciesState struct {
	Name     string                   `json:"name"`
	Cohorts  []population.CohortState `json:"cohorts"`
	Averager []recruitment.Sample     `json:"averager"`
}

// FileName returns the checkpoint file name for time t.
func FileName(t float64) string {
	return fmt.Sprintf("snapshot_%08.3f.json.zst", t)
}

// Save writes a snapshot into dir and returns its path.
func Save(snap *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	snap.Header.Version = Version
	snap.Header.Species = len(snap.Species)

	path := filepath.Join(dir, FileName(snap.Header.T))
	if err := Write(path, snap); err != nil {
		return "", err
	}
	return path, nil
}

// Write encodes a snapshot to path as a JSON header line followed by the
// JSON body, compressed with zstd.
func Write(path string, snap *Snapshot) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		enc.Close()
		return fmt.Errorf("marshal snapshot header: %w", err)
	}
	hb = append(hb, '\n')
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := json.NewEncoder(bw).Encode(snap); err != nil {
		enc.Close()
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	return f.Close()
}

// Load reads a snapshot from disk. A version mismatch is a configuration
// error.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w: %w", simerr.ErrConfig, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w: %w", simerr.ErrConfig, err)
	}
	var hdr Header
	if err := json.Unmarshal(line, &hdr); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot header: %w: %w", simerr.ErrConfig, err)
	}
	if hdr.Version != Version {
		return nil, fmt.Errorf("snapshot version %d, want %d: %w", hdr.Version, Version, simerr.ErrConfig)
	}

	var snap Snapshot
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w: %w", simerr.ErrConfig, err)
	}
	return &snap, nil
}
