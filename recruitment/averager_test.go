package recruitment

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/plantfate/simerr"
)

func TestEmptyValue(t *testing.T) {
	m := New(10)
	if m.Value() != 0 || m.Len() != 0 {
		t.Errorf("empty averager: value %v, len %d", m.Value(), m.Len())
	}
}

func TestWindowedMean(t *testing.T) {
	tests := []struct {
		name    string
		window  float64
		pushes  [][2]float64
		want    float64
		wantLen int
	}{
		{"single", 10, [][2]float64{{0, 4}}, 4, 1},
		{"all retained", 10, [][2]float64{{0, 1}, {5, 2}, {10, 3}}, 2, 3},
		{"oldest dropped", 10, [][2]float64{{0, 1}, {5, 2}, {10.5, 3}}, 2.5, 2},
		{"everything old dropped", 1, [][2]float64{{0, 100}, {1, 200}, {10, 6}}, 6, 1},
		{"equal times kept", 5, [][2]float64{{2, 1}, {2, 3}}, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.window)
			for _, p := range tt.pushes {
				if err := m.Push(p[0], p[1]); err != nil {
					t.Fatal(err)
				}
			}
			if math.Abs(m.Value()-tt.want) > 1e-12 {
				t.Errorf("expected mean %v, got %v", tt.want, m.Value())
			}
			if m.Len() != tt.wantLen {
				t.Errorf("expected %d samples, got %d", tt.wantLen, m.Len())
			}
		})
	}
}

func TestPushOutOfOrder(t *testing.T) {
	m := New(10)
	if err := m.Push(5, 1); err != nil {
		t.Fatal(err)
	}
	if err := m.Push(4, 1); !errors.Is(err, simerr.ErrPrecondition) {
		t.Errorf("expected ErrPrecondition, got %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("rejected push should not be stored")
	}
}

func TestDefaultWindow(t *testing.T) {
	if New(0).Window() != DefaultWindow {
		t.Errorf("expected default window %v", DefaultWindow)
	}
}

func TestRestore(t *testing.T) {
	m := New(10)
	for i := 0; i < 5; i++ {
		m.Push(float64(i), float64(i))
	}

	r := New(10)
	if err := r.Restore(m.Samples()); err != nil {
		t.Fatal(err)
	}
	if r.Value() != m.Value() || r.Len() != m.Len() {
		t.Errorf("restored averager differs: %v/%d vs %v/%d", r.Value(), r.Len(), m.Value(), m.Len())
	}

	if err := r.Restore([]Sample{{T: 2}, {T: 1}}); !errors.Is(err, simerr.ErrPrecondition) {
		t.Errorf("expected ErrPrecondition, got %v", err)
	}
}
