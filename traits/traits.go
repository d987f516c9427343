// Package traits defines species-level plant traits and the immutable table
// that cohorts share them through.
package traits

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/pthm-cable/plantfate/simerr"
)

// Traits holds the fixed constants of one species.
// Values are set once at registration and never mutated afterwards.
type Traits struct {
	Name        string  `yaml:"name" csv:"species"`
	LMA         float64 `yaml:"lma" csv:"lma"`                   // leaf mass per area (kg/m2)
	WoodDensity float64 `yaml:"wood_density" csv:"wood_density"` // kg/m3
	HMat        float64 `yaml:"hmat" csv:"hmat"`                 // height at maturity (m)
	P50Xylem    float64 `yaml:"p50_xylem" csv:"p50_xylem"`       // xylem vulnerability (MPa)
	Zeta        float64 `yaml:"zeta" csv:"zeta"`                 // fine-root mass per leaf area (kg/m2)

	// Derived by Coordinate
	DMat         float64 `yaml:"-" csv:"-"` // diameter at reproductive maturity (m)
	LeafLifespan float64 `yaml:"-" csv:"-"` // years
}

// Coordination holds the allometric constants used to derive dependent traits.
type Coordination struct {
	A           float64 // initial slope of the height-diameter curve
	FHMat       float64 // fraction of HMat at which reproduction starts
	LMARef      float64 // LMA with a one-year leaf lifespan (kg/m2)
	LLExponent  float64 // leaf lifespan scaling exponent with LMA
	DefaultZeta float64 // used when Zeta is unset
}

// Coordinate returns a copy of t with derived traits filled in.
func (t Traits) Coordinate(c Coordination) Traits {
	if t.Zeta == 0 {
		t.Zeta = c.DefaultZeta
	}
	// Height reaches FHMat*HMat at DMat on H = HMat(1-exp(-aD/HMat)).
	t.DMat = -t.HMat / c.A * math.Log(1-c.FHMat)
	t.LeafLifespan = math.Pow(t.LMA/c.LMARef, c.LLExponent)
	return t
}

// Validate checks that the traits describe a physically meaningful species.
func (t Traits) Validate() error {
	switch {
	case t.Name == "":
		return fmt.Errorf("species without a name: %w", simerr.ErrConfig)
	case t.LMA <= 0:
		return fmt.Errorf("species %q: lma must be positive: %w", t.Name, simerr.ErrConfig)
	case t.WoodDensity <= 0:
		return fmt.Errorf("species %q: wood_density must be positive: %w", t.Name, simerr.ErrConfig)
	case t.HMat <= 0:
		return fmt.Errorf("species %q: hmat must be positive: %w", t.Name, simerr.ErrConfig)
	case t.P50Xylem >= 0:
		return fmt.Errorf("species %q: p50_xylem must be negative: %w", t.Name, simerr.ErrConfig)
	}
	return nil
}

// LogValue implements slog.LogValuer.
func (t Traits) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", t.Name),
		slog.Float64("lma", t.LMA),
		slog.Float64("wood_density", t.WoodDensity),
		slog.Float64("hmat", t.HMat),
		slog.Float64("p50_xylem", t.P50Xylem),
		slog.Float64("dmat", t.DMat),
		slog.Float64("leaf_lifespan", t.LeafLifespan),
	)
}
