package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhoang/ingest/internal/core/domain"
	"github.com/vhoang/ingest/internal/infra/ratelimit"
	"github.com/vhoang/ingest/internal/infra/retry"
	"github.com/vhoang/ingest/internal/infra/storage/memory"
	"github.com/vhoang/ingest/internal/ingest/policy"
	"github.com/vhoang/ingest/internal/ingest/source"
	"github.com/vhoang/ingest/internal/ingest/validate"
)

func newOrchestrator(t *testing.T, store *memory.Store, bulkFailFast bool) *Orchestrator {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{
		Store:        store,
		Validator:    validate.New(),
		Policy:       policy.New(store),
		Limiter:      ratelimit.New(4),
		Retry:        retry.New(retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 2}, log),
		Logger:       log,
		BulkFailFast: bulkFailFast,
	})
}

func record(id, name, email, age, updated string) source.Record {
	return source.Record{"id": id, "name": name, "email": email, "age": age, "updated_at": updated}
}

const ts = "2026-01-02T15:04:05Z"

func TestRunHappyPath(t *testing.T) {
	store := memory.New(memory.Config{IdempotencyTTL: time.Minute})
	o := newOrchestrator(t, store, false)

	src := source.NewSliceSource([]source.Record{
		record("u1", "Alice", "a@x.com", "30", ts),
		record("u2", "Bob", "b@x.com", "40", ts),
		record("u3", "Carol", "c@y.com", "50", ts),
	})

	res, err := o.Run(context.Background(), src, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Stats.Total)
	assert.Equal(t, 3, res.Stats.Validated)
	assert.Equal(t, 3, res.Stats.Persisted)
	assert.Equal(t, 0, res.Stats.Skipped)
	assert.Equal(t, 0, res.Stats.Failed)
	assert.InDelta(t, 40.0, res.Stats.AverageAge, 0.001)
	assert.Equal(t, 3, store.Len())
}

func TestRunDomainDistributionDeterministic(t *testing.T) {
	store := memory.New(memory.Config{})
	o := newOrchestrator(t, store, false)

	src := source.NewSliceSource([]source.Record{
		record("u1", "Alice", "a@x.com", "30", ts),
		record("u2", "Bob", "b@x.com", "40", ts),
		record("u3", "Carol", "c@y.com", "50", ts),
	})

	res, err := o.Run(context.Background(), src, RunOptions{})
	require.NoError(t, err)

	require.Len(t, res.Stats.Domains, 2)
	assert.Equal(t, DomainCount{Domain: "x.com", Count: 2}, res.Stats.Domains[0])
	assert.Equal(t, DomainCount{Domain: "y.com", Count: 1}, res.Stats.Domains[1])

	assert.Contains(t, res.Report, "x.com: 2")
	assert.Contains(t, res.Report, "y.com: 1")
	assert.Less(t,
		strings.Index(res.Report, "x.com: 2"),
		strings.Index(res.Report, "y.com: 1"),
		"domains must be listed by descending count")
}

func TestRunBestEffortAccumulatesValidationErrors(t *testing.T) {
	store := memory.New(memory.Config{})
	o := newOrchestrator(t, store, false)

	src := source.NewSliceSource([]source.Record{
		record("u1", "Alice", "a@x.com", "30", ts),
		record("", "Broken", "not-an-email", "999", ts),
	})

	res, err := o.Run(context.Background(), src, RunOptions{FailFast: false})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Persisted)
	assert.Equal(t, 1, res.Stats.Failed)
	require.Len(t, res.Errors, 1)

	var ve *domain.ValidationError
	assert.True(t, errors.As(res.Errors[0], &ve))
	assert.Contains(t, res.Report, "Failures:")
}

func TestRunFailFastAbortsBeforePersistence(t *testing.T) {
	store := memory.New(memory.Config{})
	o := newOrchestrator(t, store, false)

	src := source.NewSliceSource([]source.Record{
		record("u1", "Alice", "a@x.com", "30", ts),
		record("", "Broken", "bad", "x", ts),
		record("u3", "Carol", "c@y.com", "50", ts),
	})

	res, err := o.Run(context.Background(), src, RunOptions{FailFast: true})
	require.Error(t, err)
	assert.Nil(t, res)

	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
	// Two-phase design: nothing persists when accumulation aborts.
	assert.Equal(t, 0, store.Len())
}

func TestRunPolicySkipsAreNeverFatal(t *testing.T) {
	store := memory.New(memory.Config{})
	o := newOrchestrator(t, store, false)

	src := source.NewSliceSource([]source.Record{
		record("u1", "Alice", "a@mailinator.com", "30", ts),
		record("u2", "Bob", "b@x.com", "40", ts),
	})

	// FailFast applies to validation failures only.
	res, err := o.Run(context.Background(), src, RunOptions{FailFast: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Skipped)
	assert.Equal(t, 1, res.Stats.Persisted)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, domain.SkipDisposableEmail, res.Skipped[0].Reason)
	assert.Contains(t, res.Report, "disposable-email")
}

func TestRunStaleAndDuplicateSkips(t *testing.T) {
	store := memory.New(memory.Config{})
	seed := domain.User{ID: "u1", Name: "Alice", Email: "a@x.com", Age: 30,
		UpdatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	_, err := store.Upsert(seed, "")
	require.NoError(t, err)

	o := newOrchestrator(t, store, false)
	src := source.NewSliceSource([]source.Record{
		// Older than the stored record: stale. Then same email+name
		// under a new id: duplicate.
		record("u1", "Alice", "a@x.com", "31", ts),
		record("u9", "Alice", "a@x.com", "31", "2026-07-01T00:00:00Z"),
	})

	res, err := o.Run(context.Background(), src, RunOptions{})
	require.NoError(t, err)

	require.Len(t, res.Skipped, 2)
	assert.Equal(t, domain.SkipStaleUpdate, res.Skipped[0].Reason)
	assert.Equal(t, domain.SkipDuplicate, res.Skipped[1].Reason)
	assert.Equal(t, 0, res.Stats.Persisted)

	stored, _ := store.FindByID("u1")
	assert.Equal(t, 30, stored.Age, "stale update must not overwrite")
}

func TestRunBulkFailFastIsRunFatal(t *testing.T) {
	store := memory.New(memory.Config{})
	// Seed an owner for b@x.com so u2's write hits the unique-email index.
	_, err := store.Upsert(domain.User{ID: "owner", Name: "Owner", Email: "b@x.com", Age: 20,
		UpdatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}, "")
	require.NoError(t, err)

	o := newOrchestrator(t, store, true)
	src := source.NewSliceSource([]source.Record{
		record("u2", "Bob", "b@x.com", "40", ts), // conflicts at persistence time
	})

	_, err = o.Run(context.Background(), src, RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmailConflict))
}

func TestRunBestEffortPersistenceFailureAccumulated(t *testing.T) {
	store := memory.New(memory.Config{})
	_, err := store.Upsert(domain.User{ID: "owner", Name: "Owner", Email: "b@x.com", Age: 20,
		UpdatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}, "")
	require.NoError(t, err)

	o := newOrchestrator(t, store, false)
	src := source.NewSliceSource([]source.Record{
		record("u1", "Alice", "a@x.com", "30", ts),
		record("u2", "Bob", "b@x.com", "40", ts), // conflicts
	})

	res, err := o.Run(context.Background(), src, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Persisted)
	assert.Equal(t, 1, res.Stats.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, domain.CodeRepo, domain.CodeOf(res.Errors[0]))
}

func TestRunParseErrorsBestEffort(t *testing.T) {
	store := memory.New(memory.Config{})
	o := newOrchestrator(t, store, false)

	in := "id,name,email,age,updated_at\n" +
		"u1,Alice,a@x.com,30," + ts + "\n" +
		"u2,short-row\n" +
		"u3,Carol,c@y.com,50," + ts + "\n"
	src := source.NewCSVSource(strings.NewReader(in), nil)

	res, err := o.Run(context.Background(), src, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Stats.Total)
	assert.Equal(t, 2, res.Stats.Persisted)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, domain.CodeParse, domain.CodeOf(res.Errors[0]))
}

func TestRunIdempotentReplayAcrossRuns(t *testing.T) {
	store := memory.New(memory.Config{IdempotencyTTL: time.Hour})
	records := []source.Record{
		record("u1", "Alice", "a@x.com", "30", ts),
	}

	o := newOrchestrator(t, store, false)
	_, err := o.Run(context.Background(), source.NewSliceSource(records), RunOptions{IdempotencyKey: "job-7"})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
	before, _ := store.FindByID("u1")

	// Rerunning the same batch under the same key: the stored record is
	// untouched even though the incoming copy differs.
	records[0]["age"] = "77"
	records[0]["updated_at"] = "2027-01-01T00:00:00Z"
	res, err := o.Run(context.Background(), source.NewSliceSource(records), RunOptions{IdempotencyKey: "job-7"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Persisted, "replay still reports the entity as persisted")
	after, _ := store.FindByID("u1")
	assert.Equal(t, before, after)
	assert.Equal(t, 1, store.Len())
}
