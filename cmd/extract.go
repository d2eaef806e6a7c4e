package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/oasis-extract/internal/model"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file|-]",
	Short: "Extract Section G codes from a transcript",
	Long:  "Reads a transcript from a file, or from stdin when the argument is '-' or omitted, and prints the extraction result.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		save, _ := cmd.Flags().GetBool("save")
		interaction, _ := cmd.Flags().GetString("interaction-id")

		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		transcript, err := readTranscript(path, cmd.InOrStdin())
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, nil, save)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.ExtractOASIS(ctx, transcript)
		if err != nil {
			return eris.Wrap(err, "extract")
		}
		res.InteractionID = interaction

		if save {
			if err := env.Store.SaveExtraction(ctx, res); err != nil {
				return eris.Wrap(err, "extract: save")
			}
			zap.L().Info("extraction saved", zap.String("id", res.ID))
		}

		return writeResult(cmd.OutOrStdout(), res, format)
	},
}

func readTranscript(path string, stdin io.Reader) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", eris.Wrapf(err, "read transcript %s", path)
	}
	return string(b), nil
}

// writeResult prints res as indented JSON or as YAML with the JSON key names.
func writeResult(w io.Writer, res *model.ExtractionResult, format string) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		raw, err := json.Marshal(res)
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return eris.Wrap(err, "decode result")
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(doc)
	default:
		return eris.Errorf("unknown format %q", format)
	}
}

func init() {
	extractCmd.Flags().String("format", "json", "output format: json or yaml")
	extractCmd.Flags().Bool("save", false, "persist the result to the audit store")
	extractCmd.Flags().String("interaction-id", "", "interaction id recorded with the result")
	rootCmd.AddCommand(extractCmd)
}
