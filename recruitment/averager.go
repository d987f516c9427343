// Package recruitment smooths the per-species newborn flux reported by the
// population solver before it is fed back as the birth boundary condition.
package recruitment

import (
	"fmt"

	"github.com/pthm-cable/plantfate/simerr"
)

// DefaultWindow is the trailing window length in years.
const DefaultWindow = 300

// Sample is one pushed observation.
type Sample struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
}

// MovingAverager keeps the arithmetic mean of the samples pushed within a
// trailing time window.
type MovingAverager struct {
	window  float64
	samples []Sample
	sum     float64
}

// New returns an empty averager. A non-positive window selects DefaultWindow.
func New(window float64) *MovingAverager {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MovingAverager{window: window}
}

// Window returns the window length.
func (m *MovingAverager) Window() float64 {
	return m.window
}

// Push records v at time t and drops samples older than t - window.
// Times must be non-decreasing.
func (m *MovingAverager) Push(t, v float64) error {
	if n := len(m.samples); n > 0 && t < m.samples[n-1].T {
		return fmt.Errorf("sample at %v pushed after %v: %w", t, m.samples[n-1].T, simerr.ErrPrecondition)
	}
	m.samples = append(m.samples, Sample{T: t, V: v})

	cut := 0
	for cut < len(m.samples) && m.samples[cut].T < t-m.window {
		cut++
	}
	if cut > 0 {
		m.samples = append(m.samples[:0], m.samples[cut:]...)
	}

	// Recompute rather than subtract so rounding does not accumulate.
	m.sum = 0
	for _, s := range m.samples {
		m.sum += s.V
	}
	return nil
}

// Value returns the mean of retained samples, or 0 when there are none.
func (m *MovingAverager) Value() float64 {
	if len(m.samples) == 0 {
		return 0
	}
	return m.sum / float64(len(m.samples))
}

// Len returns the number of retained samples.
func (m *MovingAverager) Len() int {
	return len(m.samples)
}

// Samples returns a copy of the retained samples, oldest first.
func (m *MovingAverager) Samples() []Sample {
	return append([]Sample(nil), m.samples...)
}

// Restore replaces the retained samples, e.g. when resuming from a snapshot.
func (m *MovingAverager) Restore(samples []Sample) error {
	for i := 1; i < len(samples); i++ {
		if samples[i].T < samples[i-1].T {
			return fmt.Errorf("restored samples out of order at %d: %w", i, simerr.ErrPrecondition)
		}
	}
	m.samples = append(m.samples[:0], samples...)
	m.sum = 0
	for _, s := range m.samples {
		m.sum += s.V
	}
	return nil
}
