package extraction

import (
	"strings"

	"github.com/newsweaver/newsweaver/internal/models"
)

// Rule binds a MIME-type predicate to a strategy and the content kind its
// output should be delivered as.
type Rule struct {
	Name     string
	Kind     models.ContentKind
	Match    func(mimetype string) bool
	Strategy Strategy
}

// Dispatcher resolves MIME types against an ordered rule table. The first
// matching rule wins, so more specific predicates must come before broader
// ones (the plain-text fallback is last for that reason).
type Dispatcher struct {
	rules []Rule
}

// NewDispatcher builds the default rule table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{rules: []Rule{
		{
			Name:     "html",
			Kind:     models.KindArticle,
			Match:    mimeContains("html"),
			Strategy: &HTMLStrategy{},
		},
		{
			Name:     "pdf",
			Kind:     models.KindDocument,
			Match:    mimeContains("pdf"),
			Strategy: &PDFStrategy{},
		},
		{
			Name:     "docx",
			Kind:     models.KindDocument,
			Match:    mimeContainsAny("wordprocessingml", "msword"),
			Strategy: &DocxStrategy{},
		},
		{
			Name:     "spreadsheet",
			Kind:     models.KindSpreadsheet,
			Match:    mimeContainsAny("spreadsheetml", "ms-excel"),
			Strategy: &XLSXStrategy{},
		},
		{
			Name:     "image",
			Kind:     models.KindImage,
			Match:    mimePrefix("image/"),
			Strategy: NewImageStrategy(),
		},
		// Catch-all for text/* and anything self-describing as text. Must
		// stay last: text/html would otherwise be swallowed here.
		{
			Name:     "plaintext",
			Kind:     models.KindDocument,
			Match:    mimeContains("text"),
			Strategy: &PlainTextStrategy{},
		},
	}}
}

// Resolve returns the first rule whose predicate matches the MIME type.
func (d *Dispatcher) Resolve(mimetype string) (*Rule, error) {
	normalized := normalizeMime(mimetype)
	for i := range d.rules {
		if d.rules[i].Match(normalized) {
			return &d.rules[i], nil
		}
	}
	return nil, ErrUnsupportedType
}

// normalizeMime lowercases and strips parameters ("text/html; charset=utf-8").
func normalizeMime(mimetype string) string {
	if i := strings.IndexByte(mimetype, ';'); i >= 0 {
		mimetype = mimetype[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimetype))
}

func mimeContains(fragment string) func(string) bool {
	return func(m string) bool { return strings.Contains(m, fragment) }
}

func mimeContainsAny(fragments ...string) func(string) bool {
	return func(m string) bool {
		for _, f := range fragments {
			if strings.Contains(m, f) {
				return true
			}
		}
		return false
	}
}

func mimePrefix(prefix string) func(string) bool {
	return func(m string) bool { return strings.HasPrefix(m, prefix) }
}
