package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode tags every error the pipeline can surface so the report and
// exit-code logic can classify without string matching.
type ErrorCode string

const (
	CodeParse      ErrorCode = "parse"
	CodeValidation ErrorCode = "validation"
	CodePolicy     ErrorCode = "policy"
	CodeRepo       ErrorCode = "repo"
	CodeConfig     ErrorCode = "config"
	CodeUnknown    ErrorCode = "unknown"
)

var (
	ErrEmailConflict = errors.New("email already registered to a different user")
	ErrStoreFull     = errors.New("store capacity reached")
)

// ParseError reports a malformed input record.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse record at line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError carries every issue found on one record.
type ValidationError struct {
	RecordID string // best-effort, may be empty for an unidentifiable record
	Issues   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record %q: %s", e.RecordID, strings.Join(e.Issues, "; "))
}

// RepoError wraps a persistence failure with the offending entity.
type RepoError struct {
	UserID string
	Email  string
	Err    error
}

func (e *RepoError) Error() string {
	return fmt.Sprintf("persist user %q (%s): %v", e.UserID, e.Email, e.Err)
}

func (e *RepoError) Unwrap() error { return e.Err }

// ConfigError reports an invalid runtime configuration. It is surfaced
// before any record is processed.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// CodeOf maps an error to its taxonomy code, CodeUnknown when untagged.
func CodeOf(err error) ErrorCode {
	var (
		pe *ParseError
		ve *ValidationError
		re *RepoError
		ce *ConfigError
	)
	switch {
	case errors.As(err, &pe):
		return CodeParse
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &re):
		return CodeRepo
	case errors.As(err, &ce):
		return CodeConfig
	default:
		return CodeUnknown
	}
}
