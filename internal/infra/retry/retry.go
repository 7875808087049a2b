// Package retry runs operations with bounded attempts and full-jitter
// exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    5 * time.Second,
	Factor:      2.0,
}

// Executor retries an operation under one Config. Safe for concurrent use.
type Executor struct {
	cfg Config
	log *slog.Logger

	// randFloat is swapped in tests to pin the jitter draw.
	randFloat func() float64
}

// New creates an Executor. MaxAttempts below 1 is coerced to 1 so at
// least one attempt is always made; Factor below 1 is coerced to 1.
func New(cfg Config, log *slog.Logger) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Factor < 1 {
		cfg.Factor = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{cfg: cfg, log: log, randFloat: rand.Float64}
}

// Do runs op until it succeeds or MaxAttempts is exhausted. Attempt
// numbering starts at 1. The terminal error is the operation's own last
// error, returned verbatim; no synthetic "attempts exceeded" wrapper.
func (e *Executor) Do(ctx context.Context, op func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		err := op(attempt)
		if err == nil {
			if attempt > 1 {
				e.log.Info("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		lastErr = err
		e.log.Warn("operation attempt failed",
			"attempt", attempt,
			"max_attempts", e.cfg.MaxAttempts,
			"error", err)

		if attempt == e.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.delay(attempt)):
		}
	}

	return lastErr
}

// delay computes the backoff before the next attempt: a uniform draw
// from [0, cap) where cap = min(MaxDelay, BaseDelay * Factor^(attempt-1)).
// The sleep is the draw, never the cap itself.
func (e *Executor) delay(attempt int) time.Duration {
	ceiling := float64(e.cfg.BaseDelay) * math.Pow(e.cfg.Factor, float64(attempt-1))
	if ceiling > float64(e.cfg.MaxDelay) {
		ceiling = float64(e.cfg.MaxDelay)
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(e.randFloat() * ceiling)
}
