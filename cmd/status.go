package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dispatchlab/failover/internal/model"
	"github.com/dispatchlab/failover/internal/resilience"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider fleet health, breaker states, and cost projections",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initCore(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		requestsPerDay, _ := cmd.Flags().GetFloat64("requests-per-day")

		formatFleet(os.Stdout, env, requestsPerDay)
		return nil
	},
}

// formatFleet writes the fleet table.
func formatFleet(out io.Writer, env *coreEnv, requestsPerDay float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tSERVICE\tTIER\tSTATUS\tBREAKER\tRELIABILITY\tLATENCY_MS\tRATE\tMONTHLY_EST")
	_, _ = fmt.Fprintln(w, "--------\t-------\t----\t------\t-------\t-----------\t----------\t----\t-----------")

	for _, p := range env.Registry.Snapshot() {
		state := env.Breakers.State(p.ID)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.3f\t%.0f\t$%.5f\t$%.2f\n",
			p.ID,
			p.ServiceType,
			p.Tier,
			statusGlyph(p.HealthStatus, state),
			state,
			p.Reliability,
			p.LatencyMs,
			env.Costs.Request(p.ID),
			env.Costs.MonthlyProjection(p.ID, requestsPerDay),
		)
	}
	_ = w.Flush()
}

func statusGlyph(h model.HealthStatus, s resilience.CircuitState) string {
	if s == resilience.CircuitOpen {
		return string(h) + " (tripped)"
	}
	return string(h)
}

func init() {
	statusCmd.Flags().Float64("requests-per-day", 10000, "request volume assumed for cost projections")
	rootCmd.AddCommand(statusCmd)
}
