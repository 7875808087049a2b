// Package policy decides accept/skip for validated users against
// business rules: disposable domains, staleness, duplicates.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/vhoang/ingest/internal/core/domain"
)

// StoreReader is the read-only store access the evaluator needs.
type StoreReader interface {
	FindByID(id string) (domain.User, bool)
	FindByEmail(email string) (domain.User, bool)
}

// defaultDenyList covers well-known disposable email providers.
var defaultDenyList = []string{
	"mailinator.com",
	"guerrillamail.com",
	"10minutemail.com",
	"tempmail.com",
	"throwawaymail.com",
	"yopmail.com",
}

// Evaluator applies the accept/skip rules. The deny-list check runs
// before any store lookup; the id-based staleness check takes
// precedence over email-based duplicate detection.
type Evaluator struct {
	store  StoreReader
	denied map[string]struct{}
}

// New creates an Evaluator with the built-in deny-list.
func New(store StoreReader) *Evaluator {
	return NewWithDenyList(store, defaultDenyList)
}

// NewWithDenyList creates an Evaluator with a custom deny-list.
// Domains are matched case-insensitively.
func NewWithDenyList(store StoreReader, denyList []string) *Evaluator {
	denied := make(map[string]struct{}, len(denyList))
	for _, d := range denyList {
		denied[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &Evaluator{store: store, denied: denied}
}

// Evaluate decides the outcome for one validated user. Pure aside from
// store reads; skips are business decisions, never failures.
func (e *Evaluator) Evaluate(u domain.User) domain.PolicyOutcome {
	emailDomain := u.EmailDomain()
	if _, ok := e.denied[emailDomain]; ok {
		return domain.Skip(u, domain.SkipDisposableEmail,
			fmt.Sprintf("domain %s is disposable", emailDomain))
	}

	if stored, ok := e.store.FindByID(u.ID); ok {
		// Ties favor the stored record: incoming must be strictly newer.
		if !stored.UpdatedAt.Before(u.UpdatedAt) {
			return domain.Skip(u, domain.SkipStaleUpdate,
				fmt.Sprintf("stored record updated at %s, incoming %s",
					stored.UpdatedAt.Format(time.RFC3339),
					u.UpdatedAt.Format(time.RFC3339)))
		}
		return domain.Accept(u)
	}

	if stored, ok := e.store.FindByEmail(u.Email); ok {
		if stored.ID != u.ID && strings.EqualFold(stored.Name, u.Name) {
			return domain.Skip(u, domain.SkipDuplicate,
				fmt.Sprintf("email %s already registered to %s", u.Email, stored.ID))
		}
	}

	return domain.Accept(u)
}
