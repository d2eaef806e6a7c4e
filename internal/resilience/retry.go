package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls Do. The extraction pipeline itself never retries;
// retries wrap side effects such as audit writes and result publishing.
type RetryConfig struct {
	// MaxAttempts counts the first try. Default 3.
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt. Default 200ms.
	InitialBackoff time.Duration
	// MaxBackoff caps any single delay. Default 5s.
	MaxBackoff time.Duration
	// JitterFraction spreads each delay by up to ±fraction. Default 0.2.
	JitterFraction float64
	// Retryable decides whether err is retried. Defaults to IsTransient.
	Retryable func(err error) bool
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the configuration used for store writes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		JitterFraction: 0.2,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.JitterFraction < 0 {
		c.JitterFraction = 0
	}
	if c.Retryable == nil {
		c.Retryable = IsTransient
	}
	return c
}

// backoff doubles per attempt, starting at attempt 0.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := math.Min(float64(c.InitialBackoff)*math.Pow(2, float64(attempt)), float64(c.MaxBackoff))
	if c.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * c.JitterFraction
	}
	return time.Duration(math.Max(d, 0))
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	var (
		zero T
		err  error
	)
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		var v T
		if v, err = fn(ctx); err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !cfg.Retryable(err) || attempt == cfg.MaxAttempts-1 {
			return zero, err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(cfg.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
	return zero, err
}

// LogRetries returns an OnRetry hook that logs op.
func LogRetries(op string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
