package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/monitoring"
	"github.com/sells-group/oasis-extract/internal/resilience"
	"github.com/sells-group/oasis-extract/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored extractions",
	Long:  "Commands for listing, viewing, and summarizing stored extractions and dead letters.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent extractions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mode, _ := cmd.Flags().GetString("mode")
		interaction, _ := cmd.Flags().GetString("interaction")
		limit, _ := cmd.Flags().GetInt("limit")

		results, err := st.ListExtractions(ctx, store.Filter{
			Mode:          model.Mode(mode),
			InteractionID: interaction,
			Limit:         limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(results) == 0 {
			fmt.Fprintln(os.Stderr, "No extractions found.")
			return nil
		}

		formatRunsList(os.Stdout, results)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <extraction-id>",
	Short: "Show one extraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := st.GetExtraction(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "runs show %s", args[0])
		}

		format, _ := cmd.Flags().GetString("format")
		return writeResult(os.Stdout, res, format)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate extraction statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.Filter{Limit: 10000}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		results, err := st.ListExtractions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(results))
		return nil
	},
}

// -- runs dead-letters --

var runsDeadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "List transcript events that could not be processed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		class, _ := cmd.Flags().GetString("class")
		limit, _ := cmd.Flags().GetInt("limit")

		letters, err := st.ListDeadLetters(ctx, resilience.DeadLetterFilter{
			Class: resilience.ErrorClass(class),
			Limit: limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs dead-letters")
		}
		if len(letters) == 0 {
			fmt.Fprintln(os.Stderr, "No dead letters found.")
			return nil
		}

		formatDeadLetters(os.Stdout, letters)
		return nil
	},
}

// -- runs health --

var runsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Evaluate alert thresholds against recent extractions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := monitoring.NewCollector(st).Collect(ctx, cfg.Monitoring.LookbackWindowHours)
		if err != nil {
			return eris.Wrap(err, "runs health")
		}
		alerts := monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap)

		formatHealth(os.Stdout, snap, alerts)

		send, _ := cmd.Flags().GetBool("send")
		if send {
			sent := monitoring.NewAlerter(cfg.Monitoring).SendAlerts(ctx, alerts)
			fmt.Fprintf(os.Stderr, "Sent %d of %d alerts.\n", sent, len(alerts))
		}
		return nil
	},
}

func init() {
	runsHealthCmd.Flags().Bool("send", false, "post triggered alerts to monitoring.webhook_url")
	runsCmd.AddCommand(runsHealthCmd)

	runsListCmd.Flags().String("mode", "", "filter by mode (llm+rules, huggingface, anthropic, gemini)")
	runsListCmd.Flags().String("interaction", "", "filter by interaction id")
	runsListCmd.Flags().Int("limit", 50, "max number of extractions to display")

	runsShowCmd.Flags().String("format", "json", "output format: json or yaml")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsDeadLettersCmd.Flags().String("class", "", "filter by error class (transient, permanent)")
	runsDeadLettersCmd.Flags().Int("limit", 50, "max number of dead letters to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsDeadLettersCmd)
	rootCmd.AddCommand(runsCmd)
}

func formatRunsList(out io.Writer, results []model.ExtractionResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINTERACTION\tMODE\tMODEL\tVOTES\tFILLED\tCREATED\tDURATION")
	for _, r := range results {
		interaction := r.InteractionID
		if interaction == "" {
			interaction = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d/%d\t%s\t%s\n",
			r.ID,
			interaction,
			r.Meta.Mode,
			r.Meta.Model,
			r.Meta.Votes, r.Meta.TrialsAttempted,
			r.OASIS.FilledCount(), len(model.ItemKeys),
			r.CreatedAt.Format(time.RFC3339),
			time.Duration(r.Meta.DurationMs)*time.Millisecond,
		)
	}
	_ = w.Flush()
}

// runStats holds aggregate statistics computed from a set of extractions.
type runStats struct {
	Total       int
	ByMode      map[model.Mode]int
	RuleOnly    int
	AvgFilled   float64
	AvgDuration time.Duration
	Unknowns    map[model.ItemKey]int
}

func computeRunStats(results []model.ExtractionResult) runStats {
	s := runStats{
		ByMode:   make(map[model.Mode]int),
		Unknowns: make(map[model.ItemKey]int),
	}
	var filled, durMs int64
	for i := range results {
		r := &results[i]
		s.Total++
		s.ByMode[r.Meta.Mode]++
		if r.RuleOnly() {
			s.RuleOnly++
		}
		filled += int64(r.OASIS.FilledCount())
		durMs += r.Meta.DurationMs
		for _, k := range model.ItemKeys {
			if !r.OASIS.Get(k).Known() {
				s.Unknowns[k]++
			}
		}
	}
	if s.Total > 0 {
		s.AvgFilled = float64(filled) / float64(s.Total)
		s.AvgDuration = time.Duration(durMs/int64(s.Total)) * time.Millisecond
	}
	return s
}

func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Rule-only:\t%d\n", s.RuleOnly)
	_, _ = fmt.Fprintf(w, "Avg filled:\t%.1f/%d\n", s.AvgFilled, len(model.ItemKeys))
	_, _ = fmt.Fprintf(w, "Avg duration:\t%s\n", s.AvgDuration)

	modes := make([]string, 0, len(s.ByMode))
	for m := range s.ByMode {
		modes = append(modes, string(m))
	}
	sort.Strings(modes)
	for _, m := range modes {
		_, _ = fmt.Fprintf(w, "Mode %s:\t%d\n", m, s.ByMode[model.Mode(m)])
	}
	for _, k := range model.ItemKeys {
		if n := s.Unknowns[k]; n > 0 {
			_, _ = fmt.Fprintf(w, "Unknown %s:\t%d\n", k, n)
		}
	}
	_ = w.Flush()
}

func formatDeadLetters(out io.Writer, letters []resilience.DeadLetter) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINTERACTION\tCLASS\tATTEMPTS\tCREATED\tERROR")
	for _, dl := range letters {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			dl.ID,
			dl.InteractionID,
			dl.Class,
			dl.Attempts,
			dl.CreatedAt.Format(time.RFC3339),
			dl.Error,
		)
	}
	_ = w.Flush()
}

func formatHealth(out io.Writer, snap *monitoring.Snapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Extractions:\t%d\n", snap.Extractions)
	_, _ = fmt.Fprintf(w, "Rule-only:\t%d (%.1f%%)\n", snap.RuleOnly, snap.RuleOnlyRate*100)
	_, _ = fmt.Fprintf(w, "Avg filled:\t%.1f/%d\n", snap.AvgFilled, len(model.ItemKeys))
	_, _ = fmt.Fprintf(w, "Dead letters:\t%d (%d transient)\n", snap.DeadLetters, snap.DeadLettersTransient)
	_ = w.Flush()

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo alerts.")
		return
	}
	_, _ = fmt.Fprintln(out)
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "[%s] %s: %s\n", a.Severity, a.Type, a.Message)
	}
}
