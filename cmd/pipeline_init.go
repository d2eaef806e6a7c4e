package main

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/oasis-extract/internal/config"
	"github.com/sells-group/oasis-extract/internal/consensus"
	"github.com/sells-group/oasis-extract/internal/cost"
	"github.com/sells-group/oasis-extract/internal/extract"
	"github.com/sells-group/oasis-extract/internal/metrics"
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/monitoring"
	"github.com/sells-group/oasis-extract/internal/remote"
	"github.com/sells-group/oasis-extract/internal/resilience"
	"github.com/sells-group/oasis-extract/internal/singleshot"
	"github.com/sells-group/oasis-extract/internal/store"
	"github.com/sells-group/oasis-extract/internal/summary"
	anthropicpkg "github.com/sells-group/oasis-extract/pkg/anthropic"
	"github.com/sells-group/oasis-extract/pkg/gemini"
	"github.com/sells-group/oasis-extract/pkg/huggingface"
	"github.com/sells-group/oasis-extract/pkg/ollama"
)

// pipelineEnv holds the initialized clients and the extraction service
// shared by the extract/serve/consume commands.
type pipelineEnv struct {
	Store   store.Store // nil unless requested
	Service *extract.Service
	Ollama  ollama.Client
	Metrics *metrics.Metrics
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and migrates the configured audit store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// initOllama builds the local backend client.
func initOllama(c *config.Config) ollama.Client {
	var opts []ollama.Option
	if c.LLM.TimeoutSecs > 0 {
		opts = append(opts, ollama.WithTimeout(c.LLM.Timeout()))
	}
	return ollama.NewClient(c.LLM.BaseURL, opts...)
}

// usageRecorder prices each hosted call and feeds the remote usage metrics.
func usageRecorder(m *metrics.Metrics, calc *cost.Calculator) remote.UsageFunc {
	return func(provider model.Mode, modelName string, input, output int64) {
		usd, ok := calc.Tokens(modelName, input, output)
		if !ok {
			zap.L().Debug("cost: no rate for model", zap.String("model", modelName))
		}
		m.RecordRemoteUsage(string(provider), modelName, input, output, usd)
	}
}

// initRemote builds the hosted generator for remote.provider. It returns nil
// when no provider is configured.
func initRemote(ctx context.Context, c *config.Config, onUsage remote.UsageFunc) (remote.TextGenerator, error) {
	switch c.Remote.Provider {
	case "":
		return nil, nil
	case "huggingface":
		var opts []huggingface.Option
		if c.HuggingFace.BaseURL != "" {
			opts = append(opts, huggingface.WithBaseURL(c.HuggingFace.BaseURL))
		}
		if c.HuggingFace.RateLimit > 0 {
			opts = append(opts, huggingface.WithRateLimit(c.HuggingFace.RateLimit, 1))
		}
		return remote.HuggingFace{
			Client:  huggingface.NewClient(c.HuggingFace.Key, c.HuggingFace.Model, opts...),
			OnUsage: onUsage,
		}, nil
	case "anthropic":
		client := anthropicpkg.NewClient(c.Anthropic.Key, option.WithMaxRetries(2))
		return remote.Anthropic{Client: client, ModelName: c.Anthropic.Model, OnUsage: onUsage}, nil
	case "gemini":
		var opts []gemini.Option
		if c.Gemini.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(c.Gemini.BaseURL))
		}
		client, err := gemini.NewClient(ctx, c.Gemini.Key, c.Gemini.Model, opts...)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini")
		}
		return remote.Gemini{Client: client}, nil
	default:
		return nil, eris.Errorf("unknown remote provider %q", c.Remote.Provider)
	}
}

// initPipeline wires the backend clients, breaker, strategies and summarizer
// into the extraction service. With withStore the audit store is opened too.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, m *metrics.Metrics, withStore bool) (*pipelineEnv, error) {
	env := &pipelineEnv{Metrics: m}

	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	env.Ollama = initOllama(cfg)
	breaker := resilience.NewBreaker("ollama", cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeoutSecs)

	cons := consensus.New(env.Ollama, consensus.Config{
		Model:       cfg.Consensus.Model,
		Seeds:       cfg.Consensus.Seeds,
		Temperature: cfg.Consensus.Temperature,
		NumCtx:      cfg.Consensus.NumCtx,
		CacheTTL:    time.Duration(cfg.Consensus.CatalogCacheTTL) * time.Second,
	}, consensus.WithBreaker(breaker), consensus.WithMetrics(m))

	gen, err := initRemote(ctx, cfg, usageRecorder(m, cost.NewCalculator(cfg.Cost)))
	if err != nil {
		env.Close()
		return nil, err
	}

	sumOpts := []summary.Option{summary.WithLocal(env.Ollama), summary.WithMetrics(m)}
	svcOpts := []extract.Option{extract.WithMetrics(m)}
	if gen != nil {
		sumOpts = append(sumOpts, summary.WithRemote(gen))
		svcOpts = append(svcOpts, extract.WithSingleShot(singleshot.New(gen)))
		zap.L().Info("remote provider enabled",
			zap.String("provider", string(gen.Provider())),
			zap.String("model", gen.Model()),
		)
	}

	sum := summary.New(summary.Config{
		Model:       cfg.Summary.Model,
		Temperature: cfg.Summary.Temperature,
		NumCtx:      cfg.Summary.NumCtx,
	}, sumOpts...)

	env.Service = extract.New(cons, sum, svcOpts...)
	return env, nil
}

// retryConfig converts the configured retry policy.
func retryConfig(c config.RetryConfig) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		rc.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		rc.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		rc.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	return rc
}

// startMonitoring runs the alert checker in the background when a webhook is
// configured. It stops with ctx.
func startMonitoring(ctx context.Context, st store.Store, c monitoring.Config) bool {
	if st == nil || c.WebhookURL == "" {
		return false
	}
	checker := monitoring.NewChecker(monitoring.NewCollector(st), monitoring.NewAlerter(c), c)
	go checker.Run(ctx)
	return true
}
