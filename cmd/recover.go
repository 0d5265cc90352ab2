package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/dispatchlab/failover/internal/model"
	"github.com/dispatchlab/failover/internal/recovery"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Run a production recovery flow",
	Long:  "Invokes the recovery orchestrator for an incident and prints the structured outcome. Subcommands handle subsystem-specific incidents.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initCore(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		errMsg, _ := cmd.Flags().GetString("error")
		environment, _ := cmd.Flags().GetString("environment")
		layer, _ := cmd.Flags().GetString("layer")
		impact, _ := cmd.Flags().GetString("impact")
		services, _ := cmd.Flags().GetStringSlice("services")

		var cause error
		if errMsg != "" {
			cause = eris.New(errMsg)
		}

		out := env.Recovery.ExecuteProductionRecovery(cmd.Context(), cause,
			model.Environment(environment),
			recovery.IncidentContext{
				Layer:            model.SystemLayer(layer),
				Impact:           model.BusinessImpact(impact),
				AffectedServices: services,
			})

		return printOutcome(out)
	},
}

var recoverDatabaseCmd = &cobra.Command{
	Use:   "database <migration-version>",
	Short: "Recover a failed database migration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initCore(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		errMsg, _ := cmd.Flags().GetString("error")
		environment, _ := cmd.Flags().GetString("environment")
		dataLoss, _ := cmd.Flags().GetBool("data-loss-risk")
		tables, _ := cmd.Flags().GetStringSlice("tables")

		var cause error
		if errMsg != "" {
			cause = eris.New(errMsg)
		}

		out := env.Recovery.HandleDatabaseMigrationError(cmd.Context(), cause,
			model.Environment(environment),
			recovery.DatabaseMigrationIncident{
				MigrationVersion: args[0],
				AffectedTables:   tables,
				DataLossRisk:     dataLoss,
			})

		return printOutcome(out)
	},
}

var recoverMLCmd = &cobra.Command{
	Use:   "ml <pipeline>",
	Short: "Recover a failed ML pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initCore(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		errMsg, _ := cmd.Flags().GetString("error")
		environment, _ := cmd.Flags().GetString("environment")
		failedModel, _ := cmd.Flags().GetString("failed-model")
		fallbackModel, _ := cmd.Flags().GetString("fallback-model")

		var cause error
		if errMsg != "" {
			cause = eris.New(errMsg)
		}

		out := env.Recovery.HandleAIMLPipelineError(cmd.Context(), cause,
			model.Environment(environment),
			recovery.MLPipelineIncident{
				PipelineName:  args[0],
				FailedModel:   failedModel,
				FallbackModel: fallbackModel,
			})

		return printOutcome(out)
	},
}

var recoverSecretsCmd = &cobra.Command{
	Use:   "secrets <secret-name>",
	Short: "Recover a secrets-management failure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initCore(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		errMsg, _ := cmd.Flags().GetString("error")
		environment, _ := cmd.Flags().GetString("environment")
		rotationFailed, _ := cmd.Flags().GetBool("rotation-failed")

		var cause error
		if errMsg != "" {
			cause = eris.New(errMsg)
		}

		out := env.Recovery.HandleSecretsManagementError(cmd.Context(), cause,
			model.Environment(environment),
			recovery.SecretsIncident{
				SecretName:     args[0],
				RotationFailed: rotationFailed,
			})

		return printOutcome(out)
	},
}

func printOutcome(out recovery.Outcome) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	recoverCmd.PersistentFlags().String("error", "", "error message that triggered the incident")
	recoverCmd.PersistentFlags().String("environment", "production", "deployment environment")
	recoverCmd.Flags().String("layer", "service", "subsystem layer (database, external_service, ml_pipeline, secrets, service)")
	recoverCmd.Flags().String("impact", "", "business impact override (minimal ... revenue_blocking)")
	recoverCmd.Flags().StringSlice("services", nil, "affected provider ids")

	recoverDatabaseCmd.Flags().Bool("data-loss-risk", false, "migration carries data-loss risk")
	recoverDatabaseCmd.Flags().StringSlice("tables", nil, "affected tables")

	recoverMLCmd.Flags().String("failed-model", "", "model that failed")
	recoverMLCmd.Flags().String("fallback-model", "", "fallback model to activate")

	recoverSecretsCmd.Flags().Bool("rotation-failed", false, "secret rotation also failed")

	recoverCmd.AddCommand(recoverDatabaseCmd)
	recoverCmd.AddCommand(recoverMLCmd)
	recoverCmd.AddCommand(recoverSecretsCmd)
	rootCmd.AddCommand(recoverCmd)
}
