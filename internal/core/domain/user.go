package domain

import (
	"strings"
	"time"
)

// User is a validated record. Instances are treated as immutable values;
// the store hands out copies, never its canonical instance.
type User struct {
	ID        string
	Name      string
	Email     string
	Age       int
	UpdatedAt time.Time
}

// EmailDomain returns the part after '@' of the normalized email,
// or "" when the email has no domain.
func (u User) EmailDomain() string {
	at := strings.LastIndex(u.Email, "@")
	if at < 0 || at == len(u.Email)-1 {
		return ""
	}
	return strings.ToLower(u.Email[at+1:])
}

// NormalizeEmail lower-cases an email for storage and comparison.
// The natural key is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
