package models

// ContentKind discriminates the normalized payload union.
type ContentKind string

const (
	KindArticle     ContentKind = "article"
	KindDocument    ContentKind = "document"
	KindSpreadsheet ContentKind = "spreadsheet"
	KindImage       ContentKind = "image"
)

// Endpoint returns the loader API path segment for the kind.
func (k ContentKind) Endpoint() string {
	switch k {
	case KindArticle:
		return "articles"
	case KindDocument:
		return "documents"
	case KindSpreadsheet:
		return "spreadsheets"
	case KindImage:
		return "images"
	}
	return ""
}

// Payload is a normalized content payload delivered to the loader. It is
// ephemeral: built by the transformer, serialized onto the wire, never
// persisted by the pipeline itself.
type Payload interface {
	Kind() ContentKind
	// FileID returns the owning ScrapedFile id, the loader's idempotency key.
	FileID() int64
}

// PayloadMeta carries the fields common to every payload variant.
type PayloadMeta struct {
	SourceFileID int64  `json:"source_file_id"`
	URL          string `json:"url"`
	Mimetype     string `json:"mimetype"`
}

// FileID implements Payload.
func (m PayloadMeta) FileID() int64 { return m.SourceFileID }

// ArticlePayload is extracted from HTML content.
type ArticlePayload struct {
	PayloadMeta
	Title    string `json:"title"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

func (ArticlePayload) Kind() ContentKind { return KindArticle }

// DocumentPayload is extracted from PDF, word-processing or plain-text
// content.
type DocumentPayload struct {
	PayloadMeta
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func (DocumentPayload) Kind() ContentKind { return KindDocument }

// SpreadsheetPayload carries tabular rows keyed by header cell.
type SpreadsheetPayload struct {
	PayloadMeta
	Filename string           `json:"filename"`
	Rows     []map[string]any `json:"data_json"`
}

func (SpreadsheetPayload) Kind() ContentKind { return KindSpreadsheet }

// ImagePayload carries OCR text, a detected-object list and EXIF metadata.
type ImagePayload struct {
	PayloadMeta
	ExtractedText   string            `json:"extracted_text"`
	DetectedObjects []string          `json:"detected_objects"`
	ImageMetadata   map[string]string `json:"image_metadata"`
}

func (ImagePayload) Kind() ContentKind { return KindImage }
