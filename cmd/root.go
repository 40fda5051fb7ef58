package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/greenshelf/ecoscore/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ecoscore",
	Short: "Retail product carbon footprint engine",
	Long:  "Estimates product carbon footprints with a deterministic coefficient-table calculator and a gated learned model, reconciling the two estimates into a single value with a confidence tier.",
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
