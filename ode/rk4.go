// Package ode holds the fixed-step integrator shared by the single-plant
// growth routine and the reference population solver.
package ode

import "gonum.org/v1/gonum/floats"

// Func evaluates dy/dt at (t, y) into dydt.
type Func func(t float64, y, dydt []float64) error

// RK4 is a classic fourth-order Runge-Kutta stepper. Its scratch buffers are
// reused across calls, so an RK4 value must not be shared between goroutines.
type RK4 struct {
	k1, k2, k3, k4, tmp []float64
}

func (r *RK4) resize(n int) {
	if cap(r.k1) < n {
		r.k1 = make([]float64, n)
		r.k2 = make([]float64, n)
		r.k3 = make([]float64, n)
		r.k4 = make([]float64, n)
		r.tmp = make([]float64, n)
	}
	r.k1, r.k2, r.k3, r.k4, r.tmp = r.k1[:n], r.k2[:n], r.k3[:n], r.k4[:n], r.tmp[:n]
}

// Step advances y from t to t+h and writes the result to out.
// out may alias y; it must have the same length.
func (r *RK4) Step(f Func, t, h float64, y, out []float64) error {
	r.resize(len(y))

	if err := f(t, y, r.k1); err != nil {
		return err
	}
	floats.AddScaledTo(r.tmp, y, h/2, r.k1)
	if err := f(t+h/2, r.tmp, r.k2); err != nil {
		return err
	}
	floats.AddScaledTo(r.tmp, y, h/2, r.k2)
	if err := f(t+h/2, r.tmp, r.k3); err != nil {
		return err
	}
	floats.AddScaledTo(r.tmp, y, h, r.k3)
	if err := f(t+h, r.tmp, r.k4); err != nil {
		return err
	}

	copy(out, y)
	floats.AddScaled(out, h/6, r.k1)
	floats.AddScaled(out, h/3, r.k2)
	floats.AddScaled(out, h/3, r.k3)
	floats.AddScaled(out, h/6, r.k4)
	return nil
}
