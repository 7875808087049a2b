// Package validate turns raw records into users, collecting every
// issue found on a record into one ValidationError.
package validate

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/vhoang/ingest/internal/core/domain"
	"github.com/vhoang/ingest/internal/ingest/source"
)

const (
	MinAge = 0
	MaxAge = 130
)

// Validator is a pure record-to-user function. No I/O.
type Validator struct {
	// now supplies the default UpdatedAt when the record omits one.
	now func() time.Time
}

func New() *Validator {
	return &Validator{now: time.Now}
}

// Validate checks a raw record and builds the user. On failure the
// returned ValidationError lists all issues, not just the first.
func (v *Validator) Validate(rec source.Record) (domain.User, error) {
	var issues []string

	id := strings.TrimSpace(rec["id"])
	if id == "" {
		issues = append(issues, "id is required")
	}

	name := strings.TrimSpace(rec["name"])
	if name == "" {
		issues = append(issues, "name is required")
	}

	email := strings.TrimSpace(rec["email"])
	if email == "" {
		issues = append(issues, "email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		issues = append(issues, fmt.Sprintf("invalid email %q", email))
	}

	var age int
	if raw := strings.TrimSpace(rec["age"]); raw == "" {
		issues = append(issues, "age is required")
	} else if n, err := strconv.Atoi(raw); err != nil {
		issues = append(issues, fmt.Sprintf("age %q is not a number", raw))
	} else if n < MinAge || n > MaxAge {
		issues = append(issues, fmt.Sprintf("age %d outside [%d, %d]", n, MinAge, MaxAge))
	} else {
		age = n
	}

	updatedAt := v.now()
	if raw := strings.TrimSpace(rec["updated_at"]); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			issues = append(issues, fmt.Sprintf("updated_at %q is not RFC3339", raw))
		} else {
			updatedAt = ts
		}
	}

	if len(issues) > 0 {
		return domain.User{}, &domain.ValidationError{RecordID: id, Issues: issues}
	}

	return domain.User{
		ID:        id,
		Name:      name,
		Email:     domain.NormalizeEmail(email),
		Age:       age,
		UpdatedAt: updatedAt,
	}, nil
}
