package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cloudless/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cloudless",
	Short: "Cloud-free composites from time series of EO products",
	Long: "Builds a cloud-free product around a time of interest by replacing cloudy pixels of the base " +
		"acquisition with cloud-free pixels of neighbouring acquisitions, read from WCS 2.0 EO servers or local archives.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
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
