package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// minExtractions is the sample size below which the rule-only rate is not
// evaluated.
const minExtractions = 5

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRuleOnlyRate AlertType = "rule_only_rate"
	AlertDeadLetters  AlertType = "dead_letters"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    Config
	client *http.Client
}

// NewAlerter creates a new Alerter.
func NewAlerter(cfg Config) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if a.cfg.RuleOnlyRateThreshold > 0 && snap.Extractions >= minExtractions &&
		snap.RuleOnlyRate > a.cfg.RuleOnlyRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRuleOnlyRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Rule-only rate %.1f%% exceeds threshold %.1f%% (%d of %d extractions in last %dh); the LLM backend may be down",
				snap.RuleOnlyRate*100, a.cfg.RuleOnlyRateThreshold*100,
				snap.RuleOnly, snap.Extractions, snap.LookbackHours,
			),
			Details: map[string]any{
				"rule_only_rate": snap.RuleOnlyRate,
				"threshold":      a.cfg.RuleOnlyRateThreshold,
				"rule_only":      snap.RuleOnly,
				"extractions":    snap.Extractions,
			},
			Timestamp: now,
		})
	}

	if a.cfg.DeadLetterThreshold > 0 && snap.DeadLetters >= a.cfg.DeadLetterThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDeadLetters,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d transcript event(s) dead-lettered in last %dh",
				snap.DeadLetters, snap.LookbackHours,
			),
			Details: map[string]any{
				"dead_letters": snap.DeadLetters,
				"transient":    snap.DeadLettersTransient,
				"threshold":    a.cfg.DeadLetterThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
