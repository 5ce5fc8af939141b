package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsweaver/newsweaver/internal/config"
	"github.com/newsweaver/newsweaver/internal/database"
	"github.com/newsweaver/newsweaver/internal/metrics"
	"github.com/newsweaver/newsweaver/internal/models"
)

type harness struct {
	scraper *Scraper
	sources *database.SourceRepository
	files   *database.ScrapedFileRepository
	blobDir string
}

func newHarness(t *testing.T, cfg config.ScraperConfig) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.OpenPipeline(ctx, filepath.Join(t.TempDir(), "pipeline.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobDir := t.TempDir()
	blobs, err := NewBlobStore(blobDir)
	require.NoError(t, err)

	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 1000
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "newsweaver-test/1.0"
	}

	sources := database.NewSourceRepository(db)
	files := database.NewScrapedFileRepository(db)
	return &harness{
		scraper: New(cfg, sources, files, blobs, logger, nil),
		sources: sources,
		files:   files,
		blobDir: blobDir,
	}
}

func (h *harness) addSource(t *testing.T, url string, typ models.SourceType) *models.Source {
	t.Helper()
	src := &models.Source{URL: url, Type: typ, Schedule: "0 * * * *"}
	require.NoError(t, h.sources.Create(context.Background(), src))
	return src
}

func (h *harness) rows(t *testing.T, sourceID int64) []models.ScrapedFile {
	t.Helper()
	var out []models.ScrapedFile
	for id := int64(1); id < 100; id++ {
		f, err := h.files.GetByID(context.Background(), id)
		require.NoError(t, err)
		if f != nil && f.SourceID == sourceID {
			out = append(out, *f)
		}
	}
	return out
}

func TestRunSourceHTTPCapturesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><title>hi</title><body>hello</body></html>")
	}))
	defer srv.Close()

	h := newHarness(t, config.ScraperConfig{})
	src := h.addSource(t, srv.URL, models.SourceTypeHTTP)

	require.NoError(t, h.scraper.RunSource(context.Background(), src))

	rows := h.rows(t, src.ID)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, models.StatusPending, row.Status)
	assert.Equal(t, "index.html", row.Filename)
	assert.Equal(t, "text/html", row.Mimetype)

	// Blob exists and holds the fetched body.
	data, err := os.ReadFile(row.LocalPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	// Timestamp advanced in the same commit.
	stored, err := h.sources.GetByID(context.Background(), src.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastScrapedAt)
}

func TestRunSourceUpstreamFailureAdvancesTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	h := newHarness(t, config.ScraperConfig{})
	src := h.addSource(t, srv.URL, models.SourceTypeHTTP)

	require.NoError(t, h.scraper.RunSource(context.Background(), src))

	assert.Empty(t, h.rows(t, src.ID), "failure status must record no row")
	stored, err := h.sources.GetByID(context.Background(), src.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastScrapedAt, "the fetch happened, so the timestamp advances")
}

func TestRunSourceTransportErrorLeavesTimestamp(t *testing.T) {
	h := newHarness(t, config.ScraperConfig{FetchTimeout: 500 * time.Millisecond})
	src := h.addSource(t, "http://127.0.0.1:1/unreachable", models.SourceTypeHTTP)

	require.Error(t, h.scraper.RunSource(context.Background(), src))

	stored, err := h.sources.GetByID(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastScrapedAt)
}

func TestRunSourceFilenameFromContentDisposition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		fmt.Fprint(w, "%PDF-1.4")
	}))
	defer srv.Close()

	h := newHarness(t, config.ScraperConfig{})
	src := h.addSource(t, srv.URL+"/downloads/latest", models.SourceTypeHTTP)

	require.NoError(t, h.scraper.RunSource(context.Background(), src))

	rows := h.rows(t, src.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "report.pdf", rows[0].Filename)
	assert.Equal(t, "application/pdf", rows[0].Mimetype)
}

func TestRunSourceRSSCapturesEntries(t *testing.T) {
	mux := http.NewServeMux()
	var articleHits int
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>news</title>
<item><title>one</title><link>http://%s/articles/one.html</link></item>
<item><title>two</title><link>http://%s/articles/two.html</link></item>
<item><title>broken</title><link>http://%s/articles/missing.html</link></item>
</channel></rss>`, r.Host, r.Host, r.Host)
	})
	mux.HandleFunc("/articles/", func(w http.ResponseWriter, r *http.Request) {
		if filepath.Base(r.URL.Path) == "missing.html" {
			http.NotFound(w, r)
			return
		}
		articleHits++
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body>article %s</body></html>", r.URL.Path)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newHarness(t, config.ScraperConfig{})
	src := h.addSource(t, srv.URL+"/feed.xml", models.SourceTypeRSS)

	require.NoError(t, h.scraper.RunSource(context.Background(), src))

	rows := h.rows(t, src.ID)
	require.Len(t, rows, 2, "the 404 entry is skipped, the rest of the feed lands")
	assert.Equal(t, 2, articleHits)
	names := []string{rows[0].Filename, rows[1].Filename}
	assert.ElementsMatch(t, []string{"one.html", "two.html"}, names)

	// A second run sees the PENDING rows and captures nothing new.
	require.NoError(t, h.scraper.RunSource(context.Background(), src))
	assert.Len(t, h.rows(t, src.ID), 2)
}

func TestRunSourceRecordsScrapeMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>hello</body></html>")
	}))
	defer srv.Close()

	h := newHarness(t, config.ScraperConfig{})
	collector, err := metrics.NewCollector()
	require.NoError(t, err)
	h.scraper.metrics = collector
	src := h.addSource(t, srv.URL, models.SourceTypeHTTP)

	require.NoError(t, h.scraper.RunSource(context.Background(), src))

	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), `newsweaver_pipeline_files_scraped_total{source_type="http"} 1`)
}

func TestRunSourceRSSEmptyFeedAdvancesTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>quiet</title></channel></rss>`)
	}))
	defer srv.Close()

	h := newHarness(t, config.ScraperConfig{})
	src := h.addSource(t, srv.URL, models.SourceTypeRSS)

	require.NoError(t, h.scraper.RunSource(context.Background(), src))

	assert.Empty(t, h.rows(t, src.ID))
	stored, err := h.sources.GetByID(context.Background(), src.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastScrapedAt, "a quiet feed is still a completed run")
}

func TestSweepLocalRecordsSignature(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	h := newHarness(t, config.ScraperConfig{})
	src := h.addSource(t, dir, models.SourceTypeLocal)

	require.NoError(t, h.scraper.RunSource(context.Background(), src))

	rows := h.rows(t, src.ID)
	require.Len(t, rows, 1, "subdirectories are not swept")
	row := rows[0]
	assert.Equal(t, "notes.txt", row.Filename)
	assert.Equal(t, "text/plain", row.Mimetype)
	assert.Regexp(t, `^size=5_mtime=\d+$`, row.Notes)

	// Original file stays put; the blob is a copy.
	_, err := os.Stat(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	data, err := os.ReadFile(row.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSweepLocalBlobFailureSkipsEntry(t *testing.T) {
	dir := t.TempDir()
	// The blob name gains a "<source>_<time>_" prefix, so a filename at the
	// 255-byte limit reads fine from the source dir but cannot be created in
	// the blob store.
	long := strings.Repeat("a", 251) + ".txt"
	require.NoError(t, os.WriteFile(filepath.Join(dir, long), []byte("too long"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zebra.txt"), []byte("fine"), 0o644))

	h := newHarness(t, config.ScraperConfig{})
	src := h.addSource(t, dir, models.SourceTypeLocal)

	require.NoError(t, h.scraper.RunSource(context.Background(), src))

	rows := h.rows(t, src.ID)
	require.Len(t, rows, 1, "the failed save is skipped, the rest of the sweep lands")
	assert.Equal(t, "zebra.txt", rows[0].Filename)

	stored, err := h.sources.GetByID(context.Background(), src.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastScrapedAt, "a partial sweep still advances the timestamp")
}

func TestSweepLocalSkipsActiveAndUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	h := newHarness(t, config.ScraperConfig{SkipUnchanged: true})
	src := h.addSource(t, dir, models.SourceTypeLocal)
	ctx := context.Background()

	require.NoError(t, h.scraper.RunSource(ctx, src))
	rows := h.rows(t, src.ID)
	require.Len(t, rows, 1)

	// Active PENDING row blocks re-capture regardless of content.
	require.NoError(t, h.scraper.RunSource(ctx, src))
	require.Len(t, h.rows(t, src.ID), 1)

	// Resolve the row, leave the file untouched: signature matches, skipped.
	resolve(t, h.files, &rows[0])
	require.NoError(t, h.scraper.RunSource(ctx, src))
	require.Len(t, h.rows(t, src.ID), 1)

	// Change the file: signature differs, captured again.
	require.NoError(t, os.WriteFile(path, []byte("version two"), 0o644))
	require.NoError(t, h.scraper.RunSource(ctx, src))
	assert.Len(t, h.rows(t, src.ID), 2)
}

// resolve walks a row to the PROCESSED terminal state.
func resolve(t *testing.T, files *database.ScrapedFileRepository, row *models.ScrapedFile) {
	t.Helper()
	ctx := context.Background()
	claimed, err := files.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	for i := range claimed {
		if claimed[i].ID == row.ID {
			require.NoError(t, files.SetStatus(ctx, &claimed[i], models.StatusProcessed, ""))
			return
		}
	}
	t.Fatalf("row %d was not claimable", row.ID)
}

func TestParseFeedAtom(t *testing.T) {
	body := []byte(`<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>updates</title>
<entry><title>a</title><link rel="alternate" href="https://example.com/a"/><id>tag:a</id></entry>
<entry><title>b</title><link href="https://example.com/b"/><id>tag:b</id></entry>
</feed>`)

	items, err := ParseFeed(body)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "https://example.com/a", items[0].Link)
	assert.Equal(t, "https://example.com/b", items[1].Link)
}

func TestParseFeedEmptyFeedIsNotAnError(t *testing.T) {
	items, err := ParseFeed([]byte(`<rss version="2.0"><channel><title>quiet</title></channel></rss>`))
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = ParseFeed([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"><title>quiet</title></feed>`))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseFeedRejectsGarbage(t *testing.T) {
	_, err := ParseFeed([]byte("not xml at all"))
	require.Error(t, err)
}
