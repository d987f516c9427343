package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/plantfate/config"
	"github.com/pthm-cable/plantfate/sim"
)

// RunCmd returns the run command.
func RunCmd() *cobra.Command {
	var (
		outputDir string
		resume    string
		logStats  bool
		tEnd      float64
		seed      int64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the community simulation",
		Long: `Run the community simulation from t_start to t_end, writing reports to the
output directory.

Examples:
  plantfate run --output-dir out
  plantfate run --config site.yaml --t-end 500
  plantfate run --output-dir out --resume out/snapshots/snapshot_0100.000.json.zst`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Cfg()
			if cmd.Flags().Changed("t-end") {
				cfg.Simulation.TEnd = tEnd
			}
			if cmd.Flags().Changed("seed") {
				cfg.Simulation.Seed = seed
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			s, err := sim.New(cfg, sim.Options{
				OutputDir: outputDir,
				Resume:    resume,
				LogStats:  logStats,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runErr := s.Run(ctx)
			printSummary(cmd.OutOrStdout(), s.Last())
			closeErr := s.Close()
			if runErr != nil {
				return fmt.Errorf("run stopped at t=%v: %w", s.Time(), runErr)
			}
			return closeErr
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory for CSV reports (overrides output.dir)")
	cmd.Flags().StringVar(&resume, "resume", "", "Resume from a snapshot file")
	cmd.Flags().BoolVar(&logStats, "log-stats", false, "Log every report via slog")
	cmd.Flags().Float64Var(&tEnd, "t-end", 0, "Override simulation.t_end")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Override simulation.seed")
	return cmd
}
