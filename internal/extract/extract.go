// Package extract is the entry point that turns a transcript into coded
// OASIS items, a summary and audit metadata.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sells-group/oasis-extract/internal/consensus"
	"github.com/sells-group/oasis-extract/internal/metrics"
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/reconcile"
)

// ErrEmptyTranscript is returned for blank input.
var ErrEmptyTranscript = eris.New("extract: transcript is empty")

const tracerName = "oasis-extract"

// SingleShot is the optional remote strategy tried first.
type SingleShot interface {
	Provider() model.Mode
	Model() string
	Extract(ctx context.Context, transcript string) (model.Codes, error)
}

// Consensus is the local multi-trial extractor.
type Consensus interface {
	Model() string
	Extract(ctx context.Context, transcript string) consensus.Result
}

// Summarizer produces bullet text for a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) string
}

// Option configures a Service.
type Option func(*Service)

// WithSingleShot enables the remote strategy.
func WithSingleShot(s SingleShot) Option {
	return func(svc *Service) {
		svc.single = s
	}
}

// WithMetrics records extraction counts and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(svc *Service) {
		svc.metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		svc.now = now
	}
}

// Service runs the extraction pipeline. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	single     SingleShot
	consensus  Consensus
	summarizer Summarizer
	metrics    *metrics.Metrics
	now        func() time.Time
	tracer     trace.Tracer
}

// New creates a Service.
func New(cons Consensus, sum Summarizer, opts ...Option) *Service {
	s := &Service{
		consensus:  cons,
		summarizer: sum,
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ExtractOASIS codes transcript. The remote strategy is used when configured
// and successful; otherwise consensus and rules are reconciled, which always
// yields a complete result.
func (s *Service) ExtractOASIS(ctx context.Context, transcript string) (*model.ExtractionResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrEmptyTranscript
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "extract: context")
	}

	ctx, span := s.tracer.Start(ctx, "extract.ExtractOASIS",
		trace.WithAttributes(attribute.Int("transcript.length", len(transcript))))
	defer span.End()

	start := s.now()

	res, ok := s.trySingleShot(ctx, transcript)
	if !ok {
		res = s.runConsensus(ctx, transcript)
	}

	res.Summary = s.summarizer.Summarize(ctx, transcript)

	digest, err := Digest(res.OASIS, res.Meta.Provenance)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Meta.Digest = digest

	elapsed := s.now().Sub(start)
	res.ID = uuid.NewString()
	res.CreatedAt = start.UTC()
	res.Meta.DurationMs = elapsed.Milliseconds()

	span.SetAttributes(
		attribute.String("extract.mode", string(res.Meta.Mode)),
		attribute.Int("extract.filled", res.OASIS.FilledCount()),
	)
	s.metrics.RecordExtraction(string(res.Meta.Mode), elapsed.Seconds())

	zap.L().Info("extract: extraction complete",
		zap.String("id", res.ID),
		zap.String("mode", string(res.Meta.Mode)),
		zap.String("model", res.Meta.Model),
		zap.Int("filled", res.OASIS.FilledCount()),
		zap.Int64("duration_ms", res.Meta.DurationMs),
	)
	return res, nil
}

func (s *Service) trySingleShot(ctx context.Context, transcript string) (*model.ExtractionResult, bool) {
	if s.single == nil {
		return nil, false
	}
	provider := s.single.Provider()

	ctx, span := s.tracer.Start(ctx, "extract.singleshot",
		trace.WithAttributes(attribute.String("provider", string(provider))))
	defer span.End()

	oasis, err := s.single.Extract(ctx, transcript)
	if err != nil {
		span.RecordError(err)
		s.metrics.RecordStrategyFailure(string(provider))
		zap.L().Warn("extract: single-shot strategy failed, falling back to consensus",
			zap.String("provider", string(provider)), zap.Error(err))
		return nil, false
	}

	return &model.ExtractionResult{
		OASIS: oasis,
		Meta: model.ExtractionMetadata{
			Mode:            provider,
			Model:           s.single.Model(),
			TrialsAttempted: 1,
			Votes:           1,
			Sources:         []string{string(provider)},
		},
	}, true
}

func (s *Service) runConsensus(ctx context.Context, transcript string) *model.ExtractionResult {
	ctx, span := s.tracer.Start(ctx, "extract.consensus")
	defer span.End()

	cres := s.consensus.Extract(ctx, transcript)
	rec := reconcile.Reconcile(cres.Codes, transcript)

	span.SetAttributes(
		attribute.Int("consensus.trials", cres.TrialsAttempted),
		attribute.Int("consensus.votes", cres.Votes),
	)

	return &model.ExtractionResult{
		OASIS: rec.Merged,
		Meta: model.ExtractionMetadata{
			Mode:            model.ModeLLMRules,
			Model:           s.consensus.Model(),
			TrialsAttempted: cres.TrialsAttempted,
			Votes:           cres.Votes,
			Sources:         rec.Provenance.Sources(),
			Provenance:      rec.Provenance,
		},
	}
}

// Digest fingerprints codes and provenance as the SHA-256 of their RFC 8785
// canonical JSON.
func Digest(c model.Codes, p model.ProvenanceMap) (string, error) {
	raw, err := json.Marshal(struct {
		OASIS      model.Codes         `json:"oasis"`
		Provenance model.ProvenanceMap `json:"provenance,omitempty"`
	}{c, p})
	if err != nil {
		return "", eris.Wrap(err, "extract: marshal digest input")
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", eris.Wrap(err, "extract: canonicalize digest input")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
