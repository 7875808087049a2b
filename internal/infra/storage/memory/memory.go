// Package memory provides the in-process user store with idempotent
// replay suppression. It owns the canonical user instances for the
// process lifetime; callers always receive copies.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vhoang/ingest/internal/core/domain"
	"github.com/vhoang/ingest/internal/infra/ratelimit"
	"github.com/vhoang/ingest/internal/infra/retry"
)

// Config controls store behavior.
type Config struct {
	// IdempotencyTTL is how long an idempotency entry stays live.
	// Zero means entries expire immediately (replay detection off).
	IdempotencyTTL time.Duration
	// MaxRecords caps distinct stored users. Zero means unbounded.
	MaxRecords int
}

type idemEntry struct {
	expiresAt time.Time
	memberIDs map[string]struct{}
}

func (e *idemEntry) live(now time.Time) bool {
	return now.Before(e.expiresAt)
}

// Store indexes users by id and by normalized email, and tracks
// idempotency keys. One coarse mutex guards every read-modify-write so
// the replay check and the subsequent write are a single critical
// section even under concurrent bulk persistence.
type Store struct {
	mu       sync.Mutex
	byID     map[string]*domain.User
	emailIdx map[string]string // normalized email -> id
	idem     map[string]*idemEntry
	cfg      Config

	now func() time.Time // swapped in tests
}

// New creates an empty Store.
func New(cfg Config) *Store {
	return &Store{
		byID:     make(map[string]*domain.User),
		emailIdx: make(map[string]string),
		idem:     make(map[string]*idemEntry),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// FindByID returns a copy of the stored user, if any.
func (s *Store) FindByID(id string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return domain.User{}, false
	}
	return *u, true
}

// FindByEmail looks up by the case-insensitive natural key and returns
// a copy of the stored user, if any.
func (s *Store) FindByEmail(email string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emailIdx[domain.NormalizeEmail(email)]
	if !ok {
		return domain.User{}, false
	}
	u, ok := s.byID[id]
	if !ok {
		return domain.User{}, false
	}
	return *u, true
}

// Upsert writes a user, indexing by id and normalized email. When
// idemKey is non-empty and a live entry for it already contains the
// user's id, the write is suppressed and the currently stored user is
// returned unchanged (the replay path). An expired entry is replaced,
// never merged: expired membership does not count toward replay
// detection.
func (s *Store) Upsert(u domain.User, idemKey string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(u, idemKey)
}

func (s *Store) upsertLocked(u domain.User, idemKey string) (domain.User, error) {
	if u.ID == "" {
		return domain.User{}, &domain.RepoError{Email: u.Email, Err: fmt.Errorf("empty user id")}
	}

	now := s.now()

	if idemKey != "" {
		if entry, ok := s.idem[idemKey]; ok && entry.live(now) {
			if _, member := entry.memberIDs[u.ID]; member {
				if stored, ok := s.byID[u.ID]; ok {
					return *stored, nil
				}
				// Membership without a record means the entry is stale;
				// fall through and write.
			}
		}
	}

	u.Email = domain.NormalizeEmail(u.Email)

	if ownerID, ok := s.emailIdx[u.Email]; ok && ownerID != u.ID {
		return domain.User{}, &domain.RepoError{UserID: u.ID, Email: u.Email, Err: domain.ErrEmailConflict}
	}

	prev, exists := s.byID[u.ID]
	if !exists && s.cfg.MaxRecords > 0 && len(s.byID) >= s.cfg.MaxRecords {
		return domain.User{}, &domain.RepoError{UserID: u.ID, Email: u.Email, Err: domain.ErrStoreFull}
	}

	if exists && prev.Email != u.Email {
		delete(s.emailIdx, prev.Email)
	}

	stored := u
	s.byID[u.ID] = &stored
	s.emailIdx[u.Email] = u.ID

	if idemKey != "" {
		entry, ok := s.idem[idemKey]
		if !ok || !entry.live(now) {
			entry = &idemEntry{memberIDs: make(map[string]struct{})}
			s.idem[idemKey] = entry
		}
		entry.memberIDs[u.ID] = struct{}{}
		entry.expiresAt = now.Add(s.cfg.IdempotencyTTL)
	}

	return u, nil
}

// BulkOptions wires the executors a bulk write runs under.
type BulkOptions struct {
	IdempotencyKey string
	Limiter        *ratelimit.Limiter
	Retry          *retry.Executor
	FailFast       bool
}

// BulkUpsert persists a batch. Each individual write is wrapped by the
// retry executor.
//
// FailFast: entities are written sequentially in input order; the first
// terminal failure aborts the batch and is returned as the overall
// error, with no partial BulkResult. Writes already applied stay
// applied; there are no transaction semantics.
//
// Otherwise every write is submitted through the limiter concurrently
// and the call waits for all of them to settle. The result partitions
// the batch into successes and failures in completion order, which may
// differ from input order.
func (s *Store) BulkUpsert(ctx context.Context, users []domain.User, opts BulkOptions) (domain.BulkResult, error) {
	if opts.FailFast {
		var res domain.BulkResult
		for _, u := range users {
			stored, err := s.retryingUpsert(ctx, u, opts)
			if err != nil {
				return domain.BulkResult{}, err
			}
			res.Successes = append(res.Successes, stored)
		}
		return res, nil
	}

	type settled struct {
		user   domain.User
		stored domain.User
		err    error
	}

	results := make(chan settled, len(users))
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u domain.User) {
			defer wg.Done()
			var stored domain.User
			err := opts.Limiter.Run(ctx, func() error {
				var err error
				stored, err = s.retryingUpsert(ctx, u, opts)
				return err
			})
			results <- settled{user: u, stored: stored, err: err}
		}(u)
	}
	wg.Wait()
	close(results)

	var res domain.BulkResult
	for r := range results {
		if r.err != nil {
			res.Failures = append(res.Failures, domain.BulkFailure{User: r.user, Err: r.err})
			continue
		}
		res.Successes = append(res.Successes, r.stored)
	}
	return res, nil
}

func (s *Store) retryingUpsert(ctx context.Context, u domain.User, opts BulkOptions) (domain.User, error) {
	var stored domain.User
	err := opts.Retry.Do(ctx, func(int) error {
		var err error
		stored, err = s.Upsert(u, opts.IdempotencyKey)
		return err
	})
	return stored, err
}
