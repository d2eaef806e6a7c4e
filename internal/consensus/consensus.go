// Package consensus runs several seeded extraction trials against a local
// generation backend and merges the surviving bodies by per-item vote.
package consensus

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/oasis-extract/internal/jsonrepair"
	"github.com/sells-group/oasis-extract/internal/metrics"
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/resilience"
	"github.com/sells-group/oasis-extract/internal/schema"
	"github.com/sells-group/oasis-extract/pkg/ollama"
)

// Request shapes, tried in this order for every trial.
const (
	ShapeGenerateJSON = "generate+json"
	ShapeGenerate     = "generate"
	ShapeChatJSON     = "chat+json"
	ShapeChat         = "chat"
)

// Shapes is the fixed per-trial attempt order.
var Shapes = []string{ShapeGenerateJSON, ShapeGenerate, ShapeChatJSON, ShapeChat}

// DefaultSeeds are the per-trial sampling seeds.
var DefaultSeeds = []int{11, 23, 37}

// Config controls the extractor.
type Config struct {
	Model       string
	Seeds       []int
	Temperature float64
	NumCtx      int
	CacheSize   int
	CacheTTL    time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Seeds) == 0 {
		c.Seeds = DefaultSeeds
	}
	if c.NumCtx <= 0 {
		c.NumCtx = 8192
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 32
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	return c
}

// Result is the outcome of one Extract call. Codes is nil when no trial
// produced a valid body.
type Result struct {
	Codes           *model.Codes
	Attempted       bool
	Model           string
	ResolvedModel   string
	Runs            []model.Run
	TrialsAttempted int
	Votes           int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBreaker routes every backend call through cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(e *Extractor) {
		e.breaker = cb
	}
}

// WithMetrics records trial and shape outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Extractor) {
		e.metrics = m
	}
}

// Extractor runs consensus extraction. It is safe for concurrent use.
type Extractor struct {
	client  ollama.Client
	cfg     Config
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics

	resolved *expirable.LRU[string, string]
	group    singleflight.Group
}

// New creates an Extractor over client.
func New(client ollama.Client, cfg Config, opts ...Option) *Extractor {
	cfg = cfg.withDefaults()
	e := &Extractor{
		client:   client,
		cfg:      cfg,
		resolved: expirable.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Model returns the configured model name.
func (e *Extractor) Model() string {
	return e.cfg.Model
}

// Extract runs one trial per seed. Backend failures never surface as errors:
// a trial whose every shape fails or whose body is invalid is dropped.
func (e *Extractor) Extract(ctx context.Context, transcript string) Result {
	name := e.resolveModel(ctx)
	prompt := BuildPrompt(transcript)

	res := Result{
		Attempted:       true,
		Model:           e.cfg.Model,
		ResolvedModel:   name,
		TrialsAttempted: len(e.cfg.Seeds),
	}

	for _, seed := range e.cfg.Seeds {
		run, ok := e.trial(ctx, name, prompt, seed)
		if !ok {
			e.metrics.RecordTrial(metrics.TrialDropped)
			continue
		}
		e.metrics.RecordTrial(metrics.TrialSurvived)
		res.Runs = append(res.Runs, run)
	}

	res.Votes = len(res.Runs)
	if len(res.Runs) > 0 {
		merged := Vote(res.Runs)
		res.Codes = &merged
	}

	zap.L().Info("consensus: extraction complete",
		zap.String("model", name),
		zap.Int("trials", res.TrialsAttempted),
		zap.Int("votes", res.Votes),
	)
	return res
}

// trial tries each shape in order; the first whose text parses decides the
// trial. A parsed body that fails validation drops the trial.
func (e *Extractor) trial(ctx context.Context, name, prompt string, seed int) (model.Run, bool) {
	opts := ollama.Options{Temperature: e.cfg.Temperature, NumCtx: e.cfg.NumCtx, Seed: seed}

	for _, shape := range Shapes {
		text, err := e.call(ctx, shape, name, prompt, opts)
		if err != nil {
			e.metrics.RecordShapeAttempt(shape, metrics.OutcomeTransport)
			zap.L().Debug("consensus: shape attempt failed",
				zap.String("shape", shape), zap.Int("seed", seed), zap.Error(err))
			continue
		}

		body, err := jsonrepair.Parse(text)
		if err != nil {
			e.metrics.RecordShapeAttempt(shape, metrics.OutcomeUnparsable)
			continue
		}

		codes, err := schema.Decode(body)
		if err != nil {
			e.metrics.RecordShapeAttempt(shape, metrics.OutcomeInvalid)
			zap.L().Warn("consensus: trial dropped, body failed validation",
				zap.String("shape", shape), zap.Int("seed", seed), zap.Error(err))
			return model.Run{}, false
		}

		e.metrics.RecordShapeAttempt(shape, metrics.OutcomeOK)
		return model.Run{Seed: seed, Shape: shape, Codes: codes}, true
	}

	zap.L().Warn("consensus: trial dropped, no parseable response", zap.Int("seed", seed))
	return model.Run{}, false
}

func (e *Extractor) call(ctx context.Context, shape, name, prompt string, opts ollama.Options) (string, error) {
	do := func(ctx context.Context) (*ollama.Response, error) {
		switch shape {
		case ShapeGenerateJSON, ShapeGenerate:
			req := ollama.GenerateRequest{Model: name, Prompt: prompt, Options: opts}
			if shape == ShapeGenerateJSON {
				req.Format = ollama.FormatJSON
			}
			return e.client.Generate(ctx, req)
		default:
			req := ollama.ChatRequest{
				Model: name,
				Messages: []ollama.Message{
					{Role: "system", Content: SystemMessage},
					{Role: "user", Content: prompt},
				},
				Options: opts,
			}
			if shape == ShapeChatJSON {
				req.Format = ollama.FormatJSON
			}
			return e.client.Chat(ctx, req)
		}
	}

	var (
		resp *ollama.Response
		err  error
	)
	if e.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, e.breaker, do)
	} else {
		resp, err = do(ctx)
	}
	if err != nil {
		return "", err
	}
	return ollama.Normalize(resp), nil
}

// resolveModel maps the configured name onto the backend catalog. Lookups
// are cached and concurrent misses share one catalog request. Catalog
// failures fall back to the configured name and are not cached.
func (e *Extractor) resolveModel(ctx context.Context) string {
	pref := e.cfg.Model
	if name, ok := e.resolved.Get(pref); ok {
		return name
	}

	v, _, _ := e.group.Do(pref, func() (any, error) {
		catalog, err := e.client.ListModels(ctx)
		if err != nil {
			zap.L().Warn("consensus: model catalog unavailable, using configured name",
				zap.String("model", pref), zap.Error(err))
			return pref, nil
		}
		name := ollama.ResolveModel(catalog, pref)
		e.resolved.Add(pref, name)
		return name, nil
	})
	return v.(string)
}
