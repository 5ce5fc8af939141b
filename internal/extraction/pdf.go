package extraction

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFStrategy pulls plain text out of PDF files. Encrypted or malformed
// documents surface as an ExtractionError.
type PDFStrategy struct{}

func (s *PDFStrategy) Name() string { return "pdf" }

func (s *PDFStrategy) Extract(path, mimetype string) (*Result, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, extractionErr(s.Name(), path, err)
	}
	defer f.Close()

	r, err := reader.GetPlainText()
	if err != nil {
		return nil, extractionErr(s.Name(), path, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, extractionErr(s.Name(), path, err)
	}

	return &Result{Text: strings.TrimSpace(buf.String())}, nil
}
