package cli

import (
	"fmt"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/plantfate/climate"
	"github.com/pthm-cable/plantfate/config"
	"github.com/pthm-cable/plantfate/simerr"
)

// climateRecord is one row of the climate command output.
type climateRecord struct {
	T     float64 `csv:"t"`
	Temp  float64 `csv:"temperature"`
	PPFD  float64 `csv:"ppfd"`
	VPD   float64 `csv:"vpd"`
	CO2   float64 `csv:"co2"`
	SWP   float64 `csv:"swp"`
	Wraps int     `csv:"wraps"`
}

// sampleClimate queries p from `from` to `to` in steps of dt.
func sampleClimate(p *climate.Provider, from, to, dt float64) ([]climateRecord, error) {
	var rows []climateRecord
	for i := 0; ; i++ {
		t := from + float64(i)*dt
		if t > to+1e-9 {
			break
		}
		st, err := p.StateAt(t)
		if err != nil {
			return rows, err
		}
		rows = append(rows, climateRecord{T: t, Temp: st.Temp, PPFD: st.PPFD, VPD: st.VPD, CO2: st.CO2, SWP: st.SWP, Wraps: p.Wraps()})
	}
	return rows, nil
}

// ClimateCmd returns the climate command.
func ClimateCmd() *cobra.Command {
	var (
		metFile string
		co2File string
		from    float64
		to      float64
		dt      float64
		linear  bool
	)

	cmd := &cobra.Command{
		Use:   "climate",
		Short: "Print the interpolated forcing over a time range",
		Long: `Print the climate forcing the simulation would see, as CSV. Forcing files
default to climate.met_file and climate.co2_file from the config. Times
beyond the end of the files wrap around.

Examples:
  plantfate climate --met met.csv --co2 co2.csv --from 0 --to 5 --dt 0.25`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Cfg()
			if metFile == "" {
				metFile = cfg.Climate.MetFile
			}
			if co2File == "" {
				co2File = cfg.Climate.CO2File
			}
			if metFile == "" || co2File == "" {
				return fmt.Errorf("climate needs both a met and a co2 file: %w", simerr.ErrConfig)
			}
			if dt <= 0 || to < from {
				return fmt.Errorf("need dt > 0 and to >= from: %w", simerr.ErrConfig)
			}

			interp := cfg.Derived.Interpolation
			if linear {
				interp = climate.InterpLinear
			}
			p, err := climate.Open(metFile, co2File, climate.Options{
				ReferenceYear: cfg.Climate.ReferenceYear,
				Interpolation: interp,
			})
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("from") {
				from = p.Start()
			}
			rows, err := sampleClimate(p, from, to, dt)
			if err != nil {
				return err
			}
			return gocsv.Marshal(rows, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&metFile, "met", "", "Meteorology CSV (default: climate.met_file)")
	cmd.Flags().StringVar(&co2File, "co2", "", "CO2 CSV (default: climate.co2_file)")
	cmd.Flags().Float64Var(&from, "from", 0, "First time (years since the reference year; default: first record)")
	cmd.Flags().Float64Var(&to, "to", 1, "Last time")
	cmd.Flags().Float64Var(&dt, "dt", 1.0/12, "Time between rows (years)")
	cmd.Flags().BoolVar(&linear, "linear", false, "Interpolate linearly instead of holding the previous record")
	return cmd
}
