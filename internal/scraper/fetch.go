package scraper

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/time/rate"

	"github.com/newsweaver/newsweaver/internal/config"
)

// UpstreamError reports an HTTP response with a failure status. The capture
// run records no row for it but still advances the source timestamp: the
// fetch happened, the content just was not there.
type UpstreamError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.StatusCode, e.URL)
}

// FetchedFile is the in-memory result of one URL fetch, before it is
// persisted to the blob store.
type FetchedFile struct {
	Filename string
	Mimetype string
	Body     []byte
}

// Fetcher performs rate-limited HTTP GETs with a fixed user agent.
// Redirects are followed by the underlying client; filename and MIME
// resolution use the final response.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func NewFetcher(cfg config.ScraperConfig) *Fetcher {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.FetchTimeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		userAgent: cfg.UserAgent,
	}
}

// Fetch GETs a URL. Status >= 400 yields an *UpstreamError; transport
// failures are returned as-is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchedFile, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &UpstreamError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, err)
	}

	filename := resolveFilename(resp)
	return &FetchedFile{
		Filename: filename,
		Mimetype: resolveMimetype(resp.Header.Get("Content-Type"), filename),
		Body:     body,
	}, nil
}

// resolveFilename picks, in order: the Content-Disposition filename, the
// final URL's path tail (after redirects), or "index.html".
func resolveFilename(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		if tail := path.Base(resp.Request.URL.Path); tail != "" && tail != "." && tail != "/" {
			return tail
		}
	}
	return "index.html"
}

// resolveMimetype takes the response Content-Type without parameters,
// falling back to an extension guess.
func resolveMimetype(contentType, filename string) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			return mt
		}
	}
	if ext := path.Ext(filename); ext != "" {
		if mt, _, err := mime.ParseMediaType(mime.TypeByExtension(ext)); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}

// absoluteLink resolves a possibly relative feed link against its feed URL.
func absoluteLink(feedURL, link string) string {
	link = strings.TrimSpace(link)
	base, err := url.Parse(feedURL)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}
