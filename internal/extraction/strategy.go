// Package extraction converts captured blobs into normalized content. Each
// strategy is a pure converter: bytes on disk in, typed fields out, no
// network access. Strategy selection happens through an ordered dispatch
// table keyed by MIME-type predicates.
package extraction

import (
	"errors"
	"fmt"
)

// Result is the normalized output of a strategy. Only the fields relevant
// to the content kind are populated.
type Result struct {
	Title    string
	Text     string
	Rows     []map[string]any
	Objects  []string
	Metadata map[string]string
}

// Strategy converts one captured blob into a Result.
type Strategy interface {
	Name() string
	Extract(path, mimetype string) (*Result, error)
}

// ExtractionError marks a conversion failure with a human-readable cause.
// The transformer treats it (like every extraction failure) as terminal:
// the same bytes will fail the same way on retry.
type ExtractionError struct {
	Strategy string
	Path     string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction failed for %s: %v", e.Strategy, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func extractionErr(strategy, path string, err error) error {
	return &ExtractionError{Strategy: strategy, Path: path, Err: err}
}

// ErrUnsupportedType is returned when no dispatch rule matches a MIME type.
var ErrUnsupportedType = errors.New("unsupported mimetype")
