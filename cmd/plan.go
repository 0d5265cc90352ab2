package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/dispatchlab/failover/internal/model"
)

var planCmd = &cobra.Command{
	Use:   "plan <service-type>",
	Short: "Build and print an execution plan for a service type",
	Long:  "Ranks the registered providers for a service type under the given business context and prints the resulting execution plan as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initCore(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		urgency, _ := cmd.Flags().GetString("urgency")
		customerFacing, _ := cmd.Flags().GetBool("customer-facing")
		revenueImpacting, _ := cmd.Flags().GetBool("revenue-impacting")
		maxCostPct, _ := cmd.Flags().GetFloat64("max-cost-increase-pct")
		maxLatency, _ := cmd.Flags().GetFloat64("max-latency-ms")
		minReliability, _ := cmd.Flags().GetFloat64("min-reliability")

		bc := model.BusinessContext{
			Urgency:            model.Urgency(urgency),
			CustomerFacing:     customerFacing,
			RevenueImpacting:   revenueImpacting,
			MaxCostIncreasePct: maxCostPct,
		}
		req := model.Requirements{
			MaxLatencyMs:   maxLatency,
			MinReliability: minReliability,
		}

		p, err := env.Plans.Build(model.ServiceType(args[0]), bc, req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

func init() {
	planCmd.Flags().String("urgency", "medium", "call urgency (low, medium, high, critical)")
	planCmd.Flags().Bool("customer-facing", false, "call serves a customer-facing flow")
	planCmd.Flags().Bool("revenue-impacting", false, "call failure impacts revenue")
	planCmd.Flags().Float64("max-cost-increase-pct", 0, "cost gate relative to the primary provider (0 = no gate)")
	planCmd.Flags().Float64("max-latency-ms", 0, "latency requirement (0 = none)")
	planCmd.Flags().Float64("min-reliability", 0, "reliability requirement (0 = none)")
	rootCmd.AddCommand(planCmd)
}
