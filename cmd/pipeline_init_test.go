package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/oasis-extract/internal/config"
	"github.com/sells-group/oasis-extract/internal/cost"
	"github.com/sells-group/oasis-extract/internal/metrics"
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/monitoring"
	"github.com/sells-group/oasis-extract/internal/remote"
	"github.com/sells-group/oasis-extract/internal/store"
)

func TestInitRemote(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		provider model.Mode
		model    string
		wantNil  bool
		wantErr  bool
	}{
		{name: "disabled", cfg: config.Config{}, wantNil: true},
		{
			name: "huggingface",
			cfg: config.Config{
				Remote:      config.RemoteConfig{Provider: "huggingface"},
				HuggingFace: config.HuggingFaceConfig{Key: "k", Model: "org/model", RateLimit: 2},
			},
			provider: model.ModeHuggingFace,
			model:    "org/model",
		},
		{
			name: "anthropic",
			cfg: config.Config{
				Remote:    config.RemoteConfig{Provider: "anthropic"},
				Anthropic: config.AnthropicConfig{Key: "k", Model: "claude-haiku-4-5-20251001"},
			},
			provider: model.ModeAnthropic,
			model:    "claude-haiku-4-5-20251001",
		},
		{
			name:    "unknown",
			cfg:     config.Config{Remote: config.RemoteConfig{Provider: "perplexity"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := initRemote(context.Background(), &tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, gen)
				return
			}
			var _ remote.TextGenerator = gen
			assert.Equal(t, tt.provider, gen.Provider())
			assert.Equal(t, tt.model, gen.Model())
		})
	}
}

func TestUsageRecorder(t *testing.T) {
	m := metrics.New()
	rec := usageRecorder(m, cost.NewCalculator(cost.Rates{Models: map[string]cost.ModelRate{
		"priced": {Input: 2, Output: 10},
	}}))

	rec(model.ModeAnthropic, "priced", 500_000, 100_000)
	rec(model.ModeHuggingFace, "unpriced", 10, 5)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.RemoteCostUSD.WithLabelValues("anthropic", "priced")), 1e-9)
	assert.InDelta(t, 0, testutil.ToFloat64(m.RemoteCostUSD.WithLabelValues("huggingface", "unpriced")), 1e-9)
	assert.InDelta(t, 10, testutil.ToFloat64(m.RemoteTokens.WithLabelValues("huggingface", "unpriced", "input")), 1e-9)
}

func TestStartMonitoring(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.False(t, startMonitoring(ctx, nil, monitoring.Config{WebhookURL: "http://hooks.local"}))
	st := testStore(t)
	assert.False(t, startMonitoring(ctx, st, monitoring.Config{}))
	assert.True(t, startMonitoring(ctx, st, monitoring.Config{WebhookURL: "http://hooks.local", CheckIntervalSecs: 3600}))
}

func TestRetryConfig(t *testing.T) {
	rc := retryConfig(config.RetryConfig{MaxAttempts: 5, InitialBackoffMs: 50, MaxBackoffMs: 400})
	assert.Equal(t, 5, rc.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, rc.InitialBackoff)
	assert.Equal(t, 400*time.Millisecond, rc.MaxBackoff)

	def := retryConfig(config.RetryConfig{})
	assert.Equal(t, 3, def.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, def.InitialBackoff)
}

func TestInitPipeline(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{
		LLM:       config.LLMConfig{BaseURL: "http://127.0.0.1:1", TimeoutSecs: 1},
		Consensus: config.ConsensusConfig{Model: "llama3.1", Temperature: 0.1},
		Summary:   config.SummaryConfig{Model: "llama3.1", Temperature: 0.2},
		Store:     store.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "p.db")},
		Breaker:   config.BreakerConfig{FailureThreshold: 2, ResetTimeoutSecs: 1},
	}

	env, err := initPipeline(context.Background(), nil, true)
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Service)
	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Ollama)

	// The backend is unreachable, so every tier falls through to rules and
	// the heuristic summary.
	res, err := env.Service.ExtractOASIS(context.Background(), "Patient is bedfast.")
	require.NoError(t, err)
	assert.Equal(t, model.ModeLLMRules, res.Meta.Mode)
	assert.True(t, res.RuleOnly())
	assert.NotEmpty(t, res.Summary)
}
