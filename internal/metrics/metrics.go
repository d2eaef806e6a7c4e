// Package metrics provides Prometheus metrics for the extraction pipeline.
//
// All recording methods are safe on a nil *Metrics so components can run
// without instrumentation in tests and one-shot CLI commands.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oasis_extract"

// Shape attempt outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeTransport  = "transport_error"
	OutcomeUnparsable = "unparsable"
	OutcomeInvalid    = "invalid"
)

// Trial outcomes.
const (
	TrialSurvived = "survived"
	TrialDropped  = "dropped"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	// Orchestrator
	ExtractionsTotal   *prometheus.CounterVec
	ExtractionDuration *prometheus.HistogramVec
	StrategyFailures   *prometheus.CounterVec

	// Consensus
	ConsensusTrials *prometheus.CounterVec
	ShapeAttempts   *prometheus.CounterVec

	// Summarizer
	SummaryTier *prometheus.CounterVec

	// Remote providers
	RemoteTokens  *prometheus.CounterVec
	RemoteCostUSD *prometheus.CounterVec

	// Worker
	EventsConsumed      *prometheus.CounterVec
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Store
	StoreWrites *prometheus.CounterVec
}

// New creates all metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newWithRegistry(reg)
}

func newWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		ExtractionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Total number of completed extractions by mode",
		}, []string{"mode"}),
		ExtractionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "End-to-end extraction latency in seconds",
			Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),
		StrategyFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_failures_total",
			Help:      "Single-shot strategy failures that fell back to consensus",
		}, []string{"provider"}),

		ConsensusTrials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_trials_total",
			Help:      "Consensus trials by outcome",
		}, []string{"outcome"}),
		ShapeAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_shape_attempts_total",
			Help:      "Backend request shape attempts by outcome",
		}, []string{"shape", "outcome"}),

		SummaryTier: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_tier_total",
			Help:      "Summaries produced per fallback tier",
		}, []string{"tier"}),

		RemoteTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_tokens_total",
			Help:      "Tokens reported by hosted providers",
		}, []string{"provider", "model", "direction"}),
		RemoteCostUSD: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_cost_usd_total",
			Help:      "Estimated hosted provider spend in USD",
		}, []string{"provider", "model"}),

		EventsConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Transcript events consumed by outcome",
		}, []string{"outcome"}),
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		StoreWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Audit store writes by outcome",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordExtraction records one completed extraction.
func (m *Metrics) RecordExtraction(mode string, seconds float64) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(mode).Inc()
	m.ExtractionDuration.WithLabelValues(mode).Observe(seconds)
}

// RecordStrategyFailure records a single-shot failure for provider.
func (m *Metrics) RecordStrategyFailure(provider string) {
	if m == nil {
		return
	}
	m.StrategyFailures.WithLabelValues(provider).Inc()
}

// RecordTrial records whether a consensus trial produced a valid body.
func (m *Metrics) RecordTrial(outcome string) {
	if m == nil {
		return
	}
	m.ConsensusTrials.WithLabelValues(outcome).Inc()
}

// RecordShapeAttempt records one backend request shape attempt.
func (m *Metrics) RecordShapeAttempt(shape, outcome string) {
	if m == nil {
		return
	}
	m.ShapeAttempts.WithLabelValues(shape, outcome).Inc()
}

// RecordSummaryTier records which summarizer tier produced the text.
func (m *Metrics) RecordSummaryTier(tier string) {
	if m == nil {
		return
	}
	m.SummaryTier.WithLabelValues(tier).Inc()
}

// RecordRemoteUsage records token usage and estimated spend for one call.
func (m *Metrics) RecordRemoteUsage(provider, model string, input, output int64, usd float64) {
	if m == nil {
		return
	}
	m.RemoteTokens.WithLabelValues(provider, model, "input").Add(float64(input))
	m.RemoteTokens.WithLabelValues(provider, model, "output").Add(float64(output))
	m.RemoteCostUSD.WithLabelValues(provider, model).Add(usd)
}

// RecordEvent records a consumed transcript event.
func (m *Metrics) RecordEvent(outcome string) {
	if m == nil {
		return
	}
	m.EventsConsumed.WithLabelValues(outcome).Inc()
}

// RecordPublish records a Kafka publish attempt.
func (m *Metrics) RecordPublish(topic string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(seconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}

// RecordStoreWrite records an audit store write.
func (m *Metrics) RecordStoreWrite(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = "error"
	}
	m.StoreWrites.WithLabelValues(outcome).Inc()
}
