package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/pthm-cable/plantfate/telemetry"
)

// printSummary writes an end-of-run overview of the community.
func printSummary(w io.Writer, s telemetry.CommunityStats) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Community at t=%.2f\n", s.T)
	fmt.Fprintf(w, "  individuals  %10.4f m-2\n", s.NInd)
	fmt.Fprintf(w, "  biomass      %10.4f kg m-2\n", s.Biomass)
	fmt.Fprintf(w, "  basal area   %10.6f m2 m-2\n", s.BasalArea)
	fmt.Fprintf(w, "  LAI          %10.4f\n", s.LAI)
	fmt.Fprintf(w, "  GPP          %10.4f kg m-2 yr-1\n", s.GPP)
	fmt.Fprintf(w, "  max height   %10.2f m\n", s.MaxHeight)

	p10, p50, p90 := s.HeightPercentiles()
	fmt.Fprintf(w, "  mean heights p10/p50/p90  %.2f / %.2f / %.2f m\n", p10, p50, p90)

	bold.Fprintln(w, "Species")
	for _, sp := range s.Species {
		status := color.New(color.FgGreen).Sprint("alive  ")
		if sp.NInd <= 0 {
			status = color.New(color.FgRed).Sprint("extinct")
		}
		fmt.Fprintf(w, "  %-16s %s  n=%-10.4g biomass=%-10.4g", sp.Name, status, sp.NInd, sp.Biomass)
		if sp.MeanHeight != telemetry.Missing {
			fmt.Fprintf(w, " height=%.2f", sp.MeanHeight)
		}
		fmt.Fprintln(w)
	}
}
