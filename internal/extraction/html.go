package extraction

import (
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLStrategy extracts the page title and readable body text from an HTML
// file. Script, style, and chrome elements are stripped before the text is
// flattened to newline-separated lines.
type HTMLStrategy struct{}

func (s *HTMLStrategy) Name() string { return "html" }

func (s *HTMLStrategy) Extract(path, mimetype string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, extractionErr(s.Name(), path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, extractionErr(s.Name(), path, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = "No Title"
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()

	body := doc.Find("body")
	var raw string
	if body.Length() > 0 {
		raw = body.Text()
	} else {
		raw = doc.Text()
	}

	return &Result{Title: title, Text: collapseText(raw)}, nil
}

// collapseText normalizes whitespace: each non-empty trimmed line becomes one
// output line, so extracted text reads as a compact sequence of paragraphs.
func collapseText(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		for _, chunk := range strings.Split(line, "  ") {
			chunk = strings.TrimSpace(chunk)
			if chunk != "" {
				lines = append(lines, chunk)
			}
		}
	}
	return strings.Join(lines, "\n")
}
