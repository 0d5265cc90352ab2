package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dispatchlab/failover/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "failover",
	Short: "Multi-provider resilience core for external dependencies",
	Long:  "Ranks external service providers by business context, cascades calls across them with circuit breakers and offline fallbacks, and orchestrates production recovery.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
