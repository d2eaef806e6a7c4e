// Package worker consumes final transcripts from Kafka, extracts OASIS codes
// and publishes the results.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sells-group/oasis-extract/internal/metrics"
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/resilience"
	"github.com/sells-group/oasis-extract/internal/store"
)

// Event outcomes reported to metrics.
const (
	OutcomeProcessed = "processed"
	OutcomeEmpty     = "empty"
	OutcomeSkipped   = "skipped"
	OutcomeInvalid   = "invalid"
	OutcomeDead      = "dead_lettered"
)

// ResultEventType tags published results.
const ResultEventType = "oasis.extraction"

// Config holds Kafka settings.
type Config struct {
	Brokers     []string `yaml:"brokers" mapstructure:"brokers"`
	InputTopic  string   `yaml:"input_topic" mapstructure:"input_topic"`
	OutputTopic string   `yaml:"output_topic" mapstructure:"output_topic"`
	GroupID     string   `yaml:"group_id" mapstructure:"group_id"`
}

// Reader is the consumed side of a *kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer is the produced side of a *kafka.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Extractor runs the extraction pipeline.
type Extractor interface {
	ExtractOASIS(ctx context.Context, transcript string) (*model.ExtractionResult, error)
}

// NewReader returns a consumer-group reader for cfg.InputTopic.
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.InputTopic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

// NewWriter returns a writer for cfg.OutputTopic.
func NewWriter(cfg Config) *kafka.Writer {
	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.OutputTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
}

// Option configures a Worker.
type Option func(*Worker)

// WithStore persists results and dead letters.
func WithStore(s store.Store) Option {
	return func(w *Worker) { w.store = s }
}

// WithMetrics records event and publish outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithRetry overrides the retry policy for store writes and publishes.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(w *Worker) { w.retry = cfg }
}

// Worker processes one message at a time and commits after each.
type Worker struct {
	reader    Reader
	writer    Writer
	extractor Extractor
	store     store.Store
	metrics   *metrics.Metrics
	retry     resilience.RetryConfig
	topic     string
	now       func() time.Time
}

// New creates a Worker publishing to topic.
func New(r Reader, w Writer, ex Extractor, topic string, opts ...Option) *Worker {
	wk := &Worker{
		reader:    r,
		writer:    w,
		extractor: ex,
		topic:     topic,
		retry:     resilience.DefaultRetryConfig(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(wk)
	}
	return wk
}

// Run consumes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	zap.L().Info("worker: consuming", zap.String("output_topic", w.topic))
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return eris.Wrap(err, "worker: fetch message")
		}
		if err := w.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Close closes the reader and writer.
func (w *Worker) Close() error {
	return errors.Join(w.reader.Close(), w.writer.Close())
}

// Handle processes msg and commits it. It returns an error only when the
// message could not be committed or the pipeline was cancelled.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) error {
	var ev model.TranscriptEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		ev.InteractionID = string(msg.Key)
		w.deadLetter(ctx, ev, eris.Wrap(err, "worker: decode event"), 1)
		return w.commit(ctx, msg, OutcomeInvalid)
	}

	log := zap.L().With(zap.String("interaction_id", ev.InteractionID), zap.Int64("offset", msg.Offset))

	if ev.EventType != "" && !strings.HasSuffix(ev.EventType, ".final") {
		return w.commit(ctx, msg, OutcomeSkipped)
	}
	if strings.TrimSpace(ev.Text) == "" {
		log.Debug("worker: empty transcript skipped")
		return w.commit(ctx, msg, OutcomeEmpty)
	}

	res, err := w.extractor.ExtractOASIS(ctx, ev.Text)
	if err != nil {
		return eris.Wrap(err, "worker: extract")
	}
	res.InteractionID = ev.InteractionID

	if w.store != nil {
		err := resilience.Do(ctx, w.retryFor("store save"), func(ctx context.Context) error {
			return w.store.SaveExtraction(ctx, res)
		})
		w.metrics.RecordStoreWrite(err)
		if err != nil {
			log.Error("worker: store save failed", zap.Error(err))
			w.deadLetter(ctx, ev, err, w.retry.MaxAttempts)
		}
	}

	if err := w.publish(ctx, res); err != nil {
		log.Error("worker: publish failed", zap.Error(err))
		w.deadLetter(ctx, ev, err, w.retry.MaxAttempts)
		return w.commit(ctx, msg, OutcomeDead)
	}

	log.Info("worker: transcript processed",
		zap.String("extraction_id", res.ID), zap.String("mode", string(res.Meta.Mode)))
	return w.commit(ctx, msg, OutcomeProcessed)
}

func (w *Worker) publish(ctx context.Context, res *model.ExtractionResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "worker: marshal result")
	}
	msg := kafka.Message{
		Key:   []byte(res.InteractionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ResultEventType)},
			{Key: "extractionId", Value: []byte(res.ID)},
		},
	}

	start := time.Now()
	err = resilience.Do(ctx, w.retryFor("publish"), func(ctx context.Context) error {
		return w.writer.WriteMessages(ctx, msg)
	})
	w.metrics.RecordPublish(w.topic, time.Since(start).Seconds(), err)
	return eris.Wrap(err, "worker: write message")
}

func (w *Worker) commit(ctx context.Context, msg kafka.Message, outcome string) error {
	w.metrics.RecordEvent(outcome)
	if err := w.reader.CommitMessages(ctx, msg); err != nil {
		return eris.Wrapf(err, "worker: commit offset %d", msg.Offset)
	}
	return nil
}

func (w *Worker) deadLetter(ctx context.Context, ev model.TranscriptEvent, cause error, attempts int) {
	dl := resilience.NewDeadLetter(uuid.NewString(), ev, cause, attempts, w.now())
	if w.store == nil {
		zap.L().Warn("worker: dropping event", zap.String("interaction_id", ev.InteractionID), zap.Error(cause))
		return
	}
	if err := w.store.SaveDeadLetter(ctx, dl); err != nil {
		zap.L().Error("worker: save dead letter", zap.String("interaction_id", ev.InteractionID), zap.Error(err))
	}
}

func (w *Worker) retryFor(op string) resilience.RetryConfig {
	cfg := w.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.LogRetries(op)
	}
	return cfg
}
