package extraction

import (
	"archive/zip"
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/newsweaver/newsweaver/internal/models"
)

func TestDispatcherRuleOrder(t *testing.T) {
	d := NewDispatcher()

	tests := []struct {
		mimetype string
		rule     string
		kind     models.ContentKind
	}{
		// text/html must hit the html rule, not the plain-text fallback.
		{"text/html", "html", models.KindArticle},
		{"text/html; charset=utf-8", "html", models.KindArticle},
		{"application/xhtml+xml", "html", models.KindArticle},
		{"application/pdf", "pdf", models.KindDocument},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "docx", models.KindDocument},
		{"application/msword", "docx", models.KindDocument},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "spreadsheet", models.KindSpreadsheet},
		{"application/vnd.ms-excel", "spreadsheet", models.KindSpreadsheet},
		{"image/png", "image", models.KindImage},
		{"image/jpeg", "image", models.KindImage},
		{"text/plain", "plaintext", models.KindDocument},
		{"text/csv", "plaintext", models.KindDocument},
	}
	for _, tt := range tests {
		t.Run(tt.mimetype, func(t *testing.T) {
			rule, err := d.Resolve(tt.mimetype)
			require.NoError(t, err)
			assert.Equal(t, tt.rule, rule.Name)
			assert.Equal(t, tt.kind, rule.Kind)
		})
	}
}

func TestDispatcherUnsupportedType(t *testing.T) {
	d := NewDispatcher()
	for _, m := range []string{"application/octet-stream", "video/mp4", ""} {
		_, err := d.Resolve(m)
		assert.ErrorIs(t, err, ErrUnsupportedType, m)
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestHTMLStrategy(t *testing.T) {
	page := `<html><head><title> Breaking News </title>
<script>var tracker = "noise";</script>
<style>body { color: red; }</style></head>
<body>
<nav>Home | About</nav>
<p>First paragraph.</p>
<p>Second   paragraph.</p>
<footer>Copyright</footer>
</body></html>`
	path := writeFile(t, "page.html", []byte(page))

	s := &HTMLStrategy{}
	res, err := s.Extract(path, "text/html")
	require.NoError(t, err)

	assert.Equal(t, "Breaking News", res.Title)
	assert.Contains(t, res.Text, "First paragraph.")
	assert.Contains(t, res.Text, "Second")
	assert.NotContains(t, res.Text, "tracker")
	assert.NotContains(t, res.Text, "color: red")
	assert.NotContains(t, res.Text, "Home | About")
	assert.NotContains(t, res.Text, "Copyright")
}

func TestHTMLStrategyMissingTitle(t *testing.T) {
	path := writeFile(t, "bare.html", []byte("<html><body><p>text only</p></body></html>"))

	res, err := (&HTMLStrategy{}).Extract(path, "text/html")
	require.NoError(t, err)
	assert.Equal(t, "No Title", res.Title)
	assert.Equal(t, "text only", res.Text)
}

func TestDocxStrategy(t *testing.T) {
	const documentXML = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>First paragraph</w:t></w:r><w:r><w:t> continues.</w:t></w:r></w:p>
<w:p></w:p>
<w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>
</w:body>
</w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := writeFile(t, "report.docx", buf.Bytes())

	res, err := (&DocxStrategy{}).Extract(path, "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph continues.\nSecond paragraph.", res.Text)
}

func TestDocxStrategyNotAnArchive(t *testing.T) {
	path := writeFile(t, "fake.docx", []byte("this is not a zip"))

	_, err := (&DocxStrategy{}).Extract(path, "application/msword")
	require.Error(t, err)
	var extErr *ExtractionError
	assert.ErrorAs(t, err, &extErr)
	assert.Equal(t, "docx", extErr.Strategy)
}

func TestXLSXStrategy(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"name", "count"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"alpha", 3}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"beta"}))

	path := filepath.Join(t.TempDir(), "data.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	res, err := (&XLSXStrategy{}).Extract(path, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "alpha", res.Rows[0]["name"])
	assert.Equal(t, "3", res.Rows[0]["count"])
	// Short rows pad missing cells with empty strings.
	assert.Equal(t, "beta", res.Rows[1]["name"])
	assert.Equal(t, "", res.Rows[1]["count"])
}

func TestImageStrategyMetadataAndPlaceholder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := writeFile(t, "shot.png", buf.Bytes())

	// Substitute a harmless command for the OCR binary so the test does not
	// depend on tesseract being installed.
	s := &ImageStrategy{OCRBinary: "echo"}
	res, err := s.Extract(path, "image/png")
	require.NoError(t, err)

	assert.Equal(t, []string{objectDetectionPlaceholder}, res.Objects)
	assert.Equal(t, "4", res.Metadata["width"])
	assert.Equal(t, "2", res.Metadata["height"])
}

func TestImageStrategyMissingBinary(t *testing.T) {
	path := writeFile(t, "shot.png", []byte{0x89, 0x50, 0x4e, 0x47})

	s := &ImageStrategy{OCRBinary: "definitely-not-a-real-ocr-binary"}
	_, err := s.Extract(path, "image/png")
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "image", extErr.Strategy)
}

func TestPlainTextStrategy(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("  line one\nline two\n"))

	res, err := (&PlainTextStrategy{}).Extract(path, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", res.Text)
}
