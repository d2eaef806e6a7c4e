package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/oasis-extract/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "oasis-extract",
	Short: "OASIS Section G extraction from visit transcripts",
	Long:  "Extracts OASIS-E Section G functional codes (M1800-M1860) from clinician visit transcripts using local LLM consensus, deterministic rules and an optional hosted model.",
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
