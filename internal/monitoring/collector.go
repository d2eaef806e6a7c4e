// Package monitoring watches the audit store for degraded extraction and
// posts webhook alerts when thresholds are crossed.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/resilience"
	"github.com/sells-group/oasis-extract/internal/store"
)

// scanLimit bounds how many rows one collection reads.
const scanLimit = 10000

// Config configures the checker and its alert thresholds.
type Config struct {
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	// RuleOnlyRateThreshold is the share of rule-only results above which
	// the local backend is considered down.
	RuleOnlyRateThreshold float64 `yaml:"rule_only_rate_threshold" mapstructure:"rule_only_rate_threshold"`
	DeadLetterThreshold   int     `yaml:"dead_letter_threshold" mapstructure:"dead_letter_threshold"`
}

// Snapshot holds a point-in-time view of extraction health.
type Snapshot struct {
	Extractions  int                `json:"extractions"`
	ByMode       map[model.Mode]int `json:"by_mode"`
	RuleOnly     int                `json:"rule_only"`
	RuleOnlyRate float64            `json:"rule_only_rate"`
	AvgFilled    float64            `json:"avg_filled"`

	DeadLetters          int `json:"dead_letters"`
	DeadLettersTransient int `json:"dead_letters_transient"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Querier is the read side of store.Store the collector needs.
type Querier interface {
	ListExtractions(ctx context.Context, f store.Filter) ([]model.ExtractionResult, error)
	ListDeadLetters(ctx context.Context, f resilience.DeadLetterFilter) ([]resilience.DeadLetter, error)
}

// Collector gathers snapshots from the audit store.
type Collector struct {
	store Querier
	now   func() time.Time
}

// NewCollector creates a new collector.
func NewCollector(q Querier) *Collector {
	return &Collector{store: q, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		ByMode:        make(map[model.Mode]int),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	results, err := c.store.ListExtractions(ctx, store.Filter{Since: cutoff, Limit: scanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list extractions")
	}

	var filled int
	for i := range results {
		r := &results[i]
		snap.Extractions++
		snap.ByMode[r.Meta.Mode]++
		if r.RuleOnly() {
			snap.RuleOnly++
		}
		filled += r.OASIS.FilledCount()
	}
	if snap.Extractions > 0 {
		snap.RuleOnlyRate = float64(snap.RuleOnly) / float64(snap.Extractions)
		snap.AvgFilled = float64(filled) / float64(snap.Extractions)
	}

	letters, err := c.store.ListDeadLetters(ctx, resilience.DeadLetterFilter{Limit: scanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list dead letters")
	}
	for _, dl := range letters {
		if dl.CreatedAt.Before(cutoff) {
			continue
		}
		snap.DeadLetters++
		if dl.Class == resilience.ClassTransient {
			snap.DeadLettersTransient++
		}
	}

	return snap, nil
}
