// Package source provides the raw record boundary: lazy, finite,
// forward-only sequences of loosely-typed field maps.
package source

import (
	"context"
	"io"
)

// Record is one logical input record as raw field values.
type Record map[string]string

// RecordSource yields records one at a time. Next returns io.EOF once
// the sequence is drained. A source supports one full forward pass and
// is not restartable.
type RecordSource interface {
	Next(ctx context.Context) (Record, error)
}

// SliceSource serves a fixed set of records, mainly for tests.
type SliceSource struct {
	records []Record
	pos     int
}

func NewSliceSource(records []Record) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}
