package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testExecutor(cfg Config) *Executor {
	e := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.randFloat = func() float64 { return 0 } // no sleeping in tests
	return e
}

func TestDoTermination(t *testing.T) {
	boom := errors.New("boom")
	e := testExecutor(Config{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 2})

	var attempts int
	err := e.Do(context.Background(), func(attempt int) error {
		attempts++
		if attempt != attempts {
			t.Errorf("attempt numbering: got %d, want %d", attempt, attempts)
		}
		return boom
	})

	if attempts != 4 {
		t.Errorf("expected exactly 4 attempts, got %d", attempts)
	}
	if err != boom {
		t.Errorf("expected the original error verbatim, got %v", err)
	}
}

func TestDoSuccessAfterOneFailure(t *testing.T) {
	e := testExecutor(Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 2})

	var attempts int
	err := e.Do(context.Background(), func(attempt int) error {
		attempts++
		if attempt == 1 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestDoSingleAttemptNoSleep(t *testing.T) {
	e := testExecutor(Config{MaxAttempts: 1, BaseDelay: time.Hour, MaxDelay: time.Hour, Factor: 2})
	e.randFloat = func() float64 {
		t.Fatal("delay must not be drawn when the last attempt fails")
		return 0
	}

	boom := errors.New("boom")
	start := time.Now()
	if err := e.Do(context.Background(), func(int) error { return boom }); err != boom {
		t.Fatalf("expected boom, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("single attempt should not back off, took %v", elapsed)
	}
}

func TestDoContextCanceled(t *testing.T) {
	e := New(Config{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Factor: 2},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Do(ctx, func(int) error { return errors.New("transient") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDelayIsDrawNotCap(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Factor: 2}

	tests := []struct {
		draw    float64
		attempt int
		want    time.Duration
	}{
		{0, 1, 0},
		{0.5, 1, 50 * time.Millisecond},
		{0.5, 2, 100 * time.Millisecond},
		{1, 3, 400 * time.Millisecond},
		{1, 10, time.Second}, // capped by MaxDelay
	}

	for _, tt := range tests {
		e := testExecutor(cfg)
		e.randFloat = func() float64 { return tt.draw }
		if got := e.delay(tt.attempt); got != tt.want {
			t.Errorf("delay(attempt=%d, draw=%v) = %v, want %v", tt.attempt, tt.draw, got, tt.want)
		}
	}
}

func TestDelayVaries(t *testing.T) {
	e := New(Config{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Minute, Factor: 2},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	// A real uniform draw should produce distinct values well under the cap.
	seen := map[time.Duration]bool{}
	for i := 0; i < 64; i++ {
		d := e.delay(1)
		if d < 0 || d >= time.Second {
			t.Fatalf("delay %v outside [0, cap)", d)
		}
		seen[d] = true
	}
	if len(seen) < 2 {
		t.Error("expected jittered delays to vary across draws")
	}
}
