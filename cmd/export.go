package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/report"
	"github.com/sells-group/oasis-extract/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored extractions to an xlsx review sheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		mode, _ := cmd.Flags().GetString("mode")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.Filter{Mode: model.Mode(mode), Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}
		results, err := st.ListExtractions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "export: list")
		}

		if err := report.WriteFile(out, results); err != nil {
			return eris.Wrap(err, "export")
		}
		fmt.Fprintf(os.Stderr, "Wrote %d extractions to %s\n", len(results), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "oasis-review.xlsx", "output xlsx path")
	exportCmd.Flags().String("mode", "", "filter by mode")
	exportCmd.Flags().Duration("since", 0, "only extractions newer than this (0 exports all)")
	exportCmd.Flags().Int("limit", 1000, "max number of extractions")
	rootCmd.AddCommand(exportCmd)
}
