// Package pipeline drives one ingestion run: stream records, validate
// and policy-evaluate them sequentially, bulk-persist the survivors,
// and build the run report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vhoang/ingest/internal/core/domain"
	"github.com/vhoang/ingest/internal/infra/ratelimit"
	"github.com/vhoang/ingest/internal/infra/retry"
	"github.com/vhoang/ingest/internal/infra/storage/memory"
	"github.com/vhoang/ingest/internal/ingest/metrics"
	"github.com/vhoang/ingest/internal/ingest/source"
)

// Validator is the record-shape boundary: pure, no I/O.
type Validator interface {
	Validate(rec source.Record) (domain.User, error)
}

// Evaluator decides accept/skip for a validated user.
type Evaluator interface {
	Evaluate(u domain.User) domain.PolicyOutcome
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Store     *memory.Store
	Validator Validator
	Policy    Evaluator
	Limiter   *ratelimit.Limiter
	Retry     *retry.Executor
	Logger    *slog.Logger

	// BulkFailFast selects sequential-abort bulk persistence instead
	// of concurrent settle-all.
	BulkFailFast bool
	// TopDomains is how many email domains the report lists.
	TopDomains int
	// MaxListedItems caps itemized skip/failure lines in the report.
	MaxListedItems int
}

// RunOptions are per-run parameters.
type RunOptions struct {
	// IdempotencyKey scopes replay detection for this batch. Empty
	// disables replay suppression.
	IdempotencyKey string
	// FailFast aborts the run on the first validation failure.
	// Policy skips are never run-fatal regardless of this flag.
	FailFast bool
}

// RunResult is the terminal state of a completed run.
type RunResult struct {
	RunID     string
	Stats     Stats
	Report    string
	Successes []domain.User
	Skipped   []domain.PolicyOutcome
	Errors    []error
}

// Orchestrator owns the accumulator for the duration of one run. It is
// not safe for concurrent runs over the same instance state; construct
// one per batch or serialize calls.
type Orchestrator struct {
	cfg Config
	log *slog.Logger
}

// New creates an Orchestrator. Logger defaults to slog.Default.
func New(cfg Config) *Orchestrator {
	if cfg.TopDomains <= 0 {
		cfg.TopDomains = 5
	}
	if cfg.MaxListedItems <= 0 {
		cfg.MaxListedItems = 100
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{cfg: cfg, log: log}
}

// Run executes one full pass: Streaming/Accumulating, then Persisting,
// then Reporting. All validation and policy decisions complete before
// any persistence attempt begins; there is no overlap between the two
// phases. A returned error means the run itself failed (fail-fast
// validation abort, fatal source error, or a fail-fast bulk abort);
// accumulated non-fatal errors live in RunResult.Errors.
func (o *Orchestrator) Run(ctx context.Context, src source.RecordSource, opts RunOptions) (*RunResult, error) {
	runID := uuid.NewString()
	log := o.log.With("run_id", runID)
	start := time.Now()

	log.Debug("streaming phase started", "fail_fast", opts.FailFast)

	acc, err := o.accumulate(ctx, src, opts, log)
	if err != nil {
		return nil, err
	}

	log.Debug("persisting phase started",
		"accepted", len(acc.accepted),
		"bulk_fail_fast", o.cfg.BulkFailFast,
		"concurrency", o.cfg.Limiter.Limit())

	bulk, err := o.cfg.Store.BulkUpsert(ctx, acc.accepted, memory.BulkOptions{
		IdempotencyKey: opts.IdempotencyKey,
		Limiter:        o.cfg.Limiter,
		Retry:          o.cfg.Retry,
		FailFast:       o.cfg.BulkFailFast,
	})
	if err != nil {
		log.Error("bulk persistence aborted", "error", err)
		return nil, err
	}

	metrics.RecordsPersisted.Add(float64(len(bulk.Successes)))
	for _, f := range bulk.Failures {
		metrics.RecordsFailed.WithLabelValues("persistence").Inc()
		acc.errors = append(acc.errors, f.Err)
	}

	stats := computeStats(acc, bulk)
	res := &RunResult{
		RunID:     runID,
		Stats:     stats,
		Successes: bulk.Successes,
		Skipped:   acc.skipped,
		Errors:    acc.errors,
	}
	res.Report = buildReport(res, o.cfg.TopDomains, o.cfg.MaxListedItems)

	metrics.RunDuration.Observe(time.Since(start).Seconds())
	log.Info("run completed",
		"total", stats.Total,
		"validated", stats.Validated,
		"persisted", stats.Persisted,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", time.Since(start))

	return res, nil
}

// accumulator is the per-run record of decisions. Every stat is
// derived from it afterwards, never counted independently.
type accumulator struct {
	total    int
	accepted []domain.User
	skipped  []domain.PolicyOutcome
	errors   []error // validation and parse errors, in input order
}

// accumulate drains the source sequentially. Consumption, validation
// and policy evaluation are single-threaded, so the order of errors
// and skips is deterministic regardless of downstream concurrency.
func (o *Orchestrator) accumulate(ctx context.Context, src source.RecordSource, opts RunOptions, log *slog.Logger) (*accumulator, error) {
	acc := &accumulator{}

	for {
		rec, err := src.Next(ctx)
		if err == io.EOF {
			return acc, nil
		}
		if err != nil {
			var pe *domain.ParseError
			if errors.As(err, &pe) {
				acc.total++
				metrics.RecordsTotal.Inc()
				if opts.FailFast {
					return nil, err
				}
				metrics.RecordsFailed.WithLabelValues("parse").Inc()
				acc.errors = append(acc.errors, err)
				continue
			}
			// Unrecoverable source error: always run-fatal.
			return nil, fmt.Errorf("read record: %w", err)
		}

		acc.total++
		metrics.RecordsTotal.Inc()

		u, err := o.cfg.Validator.Validate(rec)
		if err != nil {
			if opts.FailFast {
				log.Warn("validation failed, aborting run", "error", err)
				return nil, err
			}
			metrics.RecordsFailed.WithLabelValues("validation").Inc()
			acc.errors = append(acc.errors, err)
			continue
		}
		metrics.RecordsValidated.Inc()

		outcome := o.cfg.Policy.Evaluate(u)
		if !outcome.Accepted {
			metrics.RecordsSkipped.WithLabelValues(string(outcome.Reason)).Inc()
			log.Debug("record skipped", "id", u.ID, "reason", outcome.Reason)
			acc.skipped = append(acc.skipped, outcome)
			continue
		}
		acc.accepted = append(acc.accepted, u)
	}
}
