package cli

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/plantfate/config"
	"github.com/pthm-cable/plantfate/geometry"
	"github.com/pthm-cable/plantfate/simerr"
	"github.com/pthm-cable/plantfate/traits"
)

// calibrateAssimilation finds the constant assimilation rate per crown area
// at which a plant starting at size reaches target diameter after years.
func calibrateAssimilation(par *geometry.Params, tr *traits.Traits, size, target, years, a0 float64, maxEvals int) (float64, float64, error) {
	diameterAt := func(a float64) (float64, error) {
		var g geometry.PlantGeometry
		g.Init(par, tr, size)
		if _, err := g.GrowFor(years, a, tr, par); err != nil {
			return 0, err
		}
		return g.Diameter, nil
	}

	var evalErr error
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if x[0] <= 0 {
				return math.Inf(1)
			}
			d, err := diameterAt(x[0])
			if err != nil {
				evalErr = err
				return math.Inf(1)
			}
			r := (d - target) / target
			return r * r
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, []float64{a0}, settings, &optimize.NelderMead{})
	if err != nil && result == nil {
		return 0, 0, fmt.Errorf("calibration: %w", err)
	}
	if evalErr != nil && math.IsInf(result.F, 1) {
		return 0, 0, evalErr
	}
	slog.Debug("calibration finished", "status", result.Status.String(), "evals", result.Stats.FuncEvaluations)

	d, err := diameterAt(result.X[0])
	if err != nil {
		return 0, 0, err
	}
	return result.X[0], d, nil
}

// CalibrateCmd returns the calibrate command.
func CalibrateCmd() *cobra.Command {
	var (
		species  string
		size     float64
		target   float64
		years    float64
		a0       float64
		maxEvals int
	)

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Find the assimilation rate that reaches a target diameter",
		Long: `Search, with Nelder-Mead, for the constant gross assimilation rate per unit
crown area at which a single plant grows from --size to --target diameter
in --years.

Examples:
  plantfate calibrate --species pioneer --target 0.3 --years 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Cfg()
			tr, err := lookupSpecies(cfg, species)
			if err != nil {
				return err
			}
			if target <= size || years <= 0 {
				return fmt.Errorf("need target > size and years > 0: %w", simerr.ErrConfig)
			}

			a, d, err := calibrateAssimilation(&cfg.Plant, tr, size, target, years, a0, maxEvals)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "species %s: assimilation %.6g kg m-2 yr-1 reaches D=%.4f m after %g years (target %.4f m)\n",
				tr.Name, a, d, years, target)
			return nil
		},
	}

	cmd.Flags().StringVar(&species, "species", "", "Species name (default: first configured species)")
	cmd.Flags().Float64Var(&size, "size", 0.01, "Initial diameter (m)")
	cmd.Flags().Float64Var(&target, "target", 0.2, "Target diameter (m)")
	cmd.Flags().Float64Var(&years, "years", 30, "Growth period (years)")
	cmd.Flags().Float64Var(&a0, "initial", 2, "Initial guess (kg m-2 yr-1)")
	cmd.Flags().IntVar(&maxEvals, "max-evals", 200, "Maximum objective evaluations")
	return cmd
}
