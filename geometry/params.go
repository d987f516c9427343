package geometry

import (
	"fmt"

	"github.com/pthm-cable/plantfate/simerr"
)

// Params holds the species-independent plant constants.
type Params struct {
	// Crown geometry
	M  float64 `yaml:"m"`  // crown shape exponent m
	N  float64 `yaml:"n"`  // crown shape exponent n
	A  float64 `yaml:"a"`  // initial slope of height vs diameter
	C  float64 `yaml:"c"`  // crown area allometry
	FG float64 `yaml:"fg"` // upper canopy gap fraction

	// Wood
	Eta float64 `yaml:"eta"` // stem form factor
	FCR float64 `yaml:"fcr"` // coarse-root mass per unit stem mass

	// Leaf area
	LAI0        float64 `yaml:"lai0"`         // initial leaf area index
	LAIMax      float64 `yaml:"lai_max"`      // target leaf area index
	LAIResponse float64 `yaml:"lai_response"` // relaxation rate towards LAIMax (1/yr)

	// Reproduction
	AF1   float64 `yaml:"af1"`   // maximum reproductive allocation fraction
	AF2   float64 `yaml:"af2"`   // steepness of reproductive allocation
	FHMat float64 `yaml:"fhmat"` // fraction of HMat at reproductive maturity

	// Maintenance respiration per unit mass (1/yr)
	RLeaf float64 `yaml:"r_leaf"`
	RRoot float64 `yaml:"r_root"`
	RStem float64 `yaml:"r_stem"`

	// Turnover
	RootLifespan float64 `yaml:"root_lifespan"` // fine-root lifespan (yr)
	LMARef       float64 `yaml:"lma_ref"`       // LMA with a one-year leaf lifespan
	LLExponent   float64 `yaml:"ll_exponent"`
	DefaultZeta  float64 `yaml:"zeta"`

	// Integration
	MaxStep        float64 `yaml:"max_step"`        // largest GrowFor substep (yr)
	ConsistencyTol float64 `yaml:"consistency_tol"` // allowed ODE/allometric wood divergence
}

// DefaultParams returns the calibrated defaults.
func DefaultParams() Params {
	return Params{
		M:              1.5,
		N:              3,
		A:              75,
		C:              390,
		FG:             0.1,
		Eta:            0.6,
		FCR:            0.47,
		LAI0:           1.8,
		LAIMax:         3,
		LAIResponse:    0.5,
		AF1:            0.1,
		AF2:            10,
		FHMat:          0.8,
		RLeaf:          0.1,
		RRoot:          0.5,
		RStem:          0.05,
		RootLifespan:   1,
		LMARef:         0.1,
		LLExponent:     1.75,
		DefaultZeta:    0.2,
		MaxStep:        0.05,
		ConsistencyTol: 1e-4,
	}
}

// Validate checks parameter ranges the geometry relies on.
func (p Params) Validate() error {
	switch {
	case p.M <= 1 || p.N <= 1:
		return fmt.Errorf("crown shape exponents must exceed 1 (m=%v, n=%v): %w", p.M, p.N, simerr.ErrConfig)
	case p.A <= 0 || p.C <= 0:
		return fmt.Errorf("allometric constants must be positive (a=%v, c=%v): %w", p.A, p.C, simerr.ErrConfig)
	case p.FG < 0 || p.FG >= 1:
		return fmt.Errorf("gap fraction %v outside [0,1): %w", p.FG, simerr.ErrConfig)
	case p.FHMat <= 0 || p.FHMat >= 1:
		return fmt.Errorf("fhmat %v outside (0,1): %w", p.FHMat, simerr.ErrConfig)
	case p.MaxStep <= 0:
		return fmt.Errorf("max_step must be positive: %w", simerr.ErrConfig)
	case p.RootLifespan <= 0:
		return fmt.Errorf("root_lifespan must be positive: %w", simerr.ErrConfig)
	}
	return nil
}
