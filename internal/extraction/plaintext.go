package extraction

import (
	"os"
	"strings"
)

// PlainTextStrategy reads a text file verbatim. It backstops the dispatch
// table for text/* types with no richer handler.
type PlainTextStrategy struct{}

func (s *PlainTextStrategy) Name() string { return "plaintext" }

func (s *PlainTextStrategy) Extract(path, mimetype string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, extractionErr(s.Name(), path, err)
	}
	return &Result{Text: strings.TrimSpace(string(data))}, nil
}
