package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/oasis-extract/pkg/ollama"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Check the LLM backend and list its models",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client := initOllama(cfg)

		if err := client.Ping(ctx); err != nil {
			return eris.Wrapf(err, "models: backend %s unreachable", cfg.LLM.BaseURL)
		}

		pull, _ := cmd.Flags().GetBool("pull")
		if pull {
			if err := client.Pull(ctx, cfg.Consensus.Model); err != nil {
				return eris.Wrapf(err, "models: pull %s", cfg.Consensus.Model)
			}
		}

		catalog, err := client.ListModels(ctx)
		if err != nil {
			return eris.Wrap(err, "models: list")
		}
		formatModels(cmd.OutOrStdout(), catalog, cfg.Consensus.Model)
		return nil
	},
}

// formatModels prints the catalog and whether the configured model is
// installed.
func formatModels(w io.Writer, catalog []string, configured string) {
	for _, name := range catalog {
		fmt.Fprintln(w, name)
	}
	if !ollama.HasModel(catalog, configured) {
		fmt.Fprintf(w, "\nconfigured model %q not installed (run with --pull)\n", configured)
		return
	}
	fmt.Fprintf(w, "\nconfigured model %q resolves to %q\n", configured, ollama.ResolveModel(catalog, configured))
}

func init() {
	modelsCmd.Flags().Bool("pull", false, "pull the configured consensus model first")
	rootCmd.AddCommand(modelsCmd)
}
