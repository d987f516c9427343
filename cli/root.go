// Package cli implements the plantfate command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/plantfate/config"
	"github.com/pthm-cable/plantfate/simerr"
)

// NewRootCmd builds the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	var (
		configPath string
		logFormat  string
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:   "plantfate",
		Short: "Trait-based, size-structured plant community simulator",
		Long: `plantfate simulates mixed-species plant communities. Cohorts of plants
grow, compete for light, reproduce and die under a cyclic monthly climate.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(cmd.ErrOrStderr(), logFormat, logLevel); err != nil {
				return err
			}
			if err := config.Init(configPath); err != nil {
				return err
			}
			slog.Debug("config loaded", "path", configPath, "species", len(config.Cfg().Derived.Community))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format: json or text")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(GrowCmd())
	rootCmd.AddCommand(ClimateCmd())
	rootCmd.AddCommand(CalibrateCmd())
	return rootCmd
}

// setupLogging installs the default slog logger.
func setupLogging(w io.Writer, format, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level %q: %w", level, simerr.ErrConfig)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return fmt.Errorf("log format %q: %w", format, simerr.ErrConfig)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
