package climate

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pthm-cable/plantfate/simerr"
)

// State is the environmental forcing at one instant.
type State struct {
	Temp float64 // air temperature (degC)
	PPFD float64 // photosynthetic photon flux density (umol m-2 s-1)
	VPD  float64 // vapour pressure deficit (Pa)
	CO2  float64 // atmospheric CO2 (ppm)
	SWP  float64 // soil water potential (MPa)
}

// Default returns the forcing used when no series is configured.
func Default() State {
	return State{Temp: 25, PPFD: 600, VPD: 1000, CO2: 400, SWP: -1}
}

// LogValue implements slog.LogValuer.
func (s State) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("temp", s.Temp),
		slog.Float64("ppfd", s.PPFD),
		slog.Float64("vpd", s.VPD),
		slog.Float64("co2", s.CO2),
		slog.Float64("swp", s.SWP),
	)
}

func lerp(a, b, w float64) float64 {
	return a + (b-a)*w
}

func (s State) lerp(o State, w float64) State {
	return State{
		Temp: lerp(s.Temp, o.Temp, w),
		PPFD: lerp(s.PPFD, o.PPFD, w),
		VPD:  lerp(s.VPD, o.VPD, w),
		CO2:  lerp(s.CO2, o.CO2, w),
		SWP:  lerp(s.SWP, o.SWP, w),
	}
}

// Interpolation selects how a state between two records is formed.
type Interpolation int

const (
	// InterpHold returns the earlier record unchanged.
	InterpHold Interpolation = iota
	// InterpLinear interpolates every field linearly in time.
	InterpLinear
)

// ParseInterpolation maps a config value to an Interpolation.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(s) {
	case "", "hold":
		return InterpHold, nil
	case "linear":
		return InterpLinear, nil
	}
	return InterpHold, fmt.Errorf("unknown interpolation %q: %w", s, simerr.ErrConfig)
}

func (i Interpolation) String() string {
	if i == InterpLinear {
		return "linear"
	}
	return "hold"
}

// Source provides forcing at monotonically non-decreasing times.
type Source interface {
	StateAt(t float64) (State, error)
}

// Constant is a Source that never changes.
type Constant struct {
	State State
}

// StateAt returns the fixed state.
func (c Constant) StateAt(float64) (State, error) {
	return c.State, nil
}
