package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vhoang/ingest/internal/core/domain"
)

// CSVSource streams records from a CSV file. The first row is the
// header; each following row becomes a Record keyed by the header
// names. Rows whose field count differs from the header produce a
// ParseError (the reader is configured to deliver them rather than
// fail the whole file).
type CSVSource struct {
	reader  *csv.Reader
	closer  io.Closer
	header  []string
	line    int
	started bool
}

// OpenCSV opens a CSV file for one forward pass. The caller owns Close.
func OpenCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return NewCSVSource(f, f), nil
}

// NewCSVSource reads CSV from r. closer may be nil.
func NewCSVSource(r io.Reader, closer io.Closer) *CSVSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // length checked per row so one bad row is one ParseError
	cr.TrimLeadingSpace = true
	return &CSVSource{reader: cr, closer: closer}
}

func (s *CSVSource) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.started {
		s.started = true
		header, err := s.reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, &domain.ParseError{Line: 1, Err: err}
		}
		s.header = make([]string, len(header))
		for i, h := range header {
			s.header[i] = strings.TrimSpace(h)
		}
		s.line = 1
	}

	row, err := s.reader.Read()
	s.line++
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, &domain.ParseError{Line: s.line, Err: err}
	}
	if len(row) != len(s.header) {
		return nil, &domain.ParseError{
			Line: s.line,
			Err:  fmt.Errorf("expected %d fields, got %d", len(s.header), len(row)),
		}
	}

	rec := make(Record, len(s.header))
	for i, name := range s.header {
		rec[name] = row[i]
	}
	return rec, nil
}

// Close releases the underlying file, if any.
func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
