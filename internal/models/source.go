package models

import (
	"net/url"
	"strings"
	"time"
)

// Source represents a registered origin of content (an HTTP endpoint, an RSS
// feed or a local directory) with a fetch schedule.
type Source struct {
	ID            int64      `json:"id"`
	URL           string     `json:"url"`
	Type          SourceType `json:"source_type"`
	Schedule      string     `json:"schedule"` // cron-like expression, consumed by the external trigger
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
}

// SourceType categorizes how a source is fetched.
type SourceType string

const (
	SourceTypeHTTP  SourceType = "http"
	SourceTypeRSS   SourceType = "rss"
	SourceTypeLocal SourceType = "local"
)

// ParseSourceType normalizes the free-form type strings accepted by the
// admin API ("website", "https", "file", ...) into a canonical SourceType.
func ParseSourceType(raw string) (SourceType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "http", "https", "website":
		return SourceTypeHTTP, true
	case "rss":
		return SourceTypeRSS, true
	case "local", "file":
		return SourceTypeLocal, true
	default:
		return "", false
	}
}

// IsRemote reports whether the source is fetched over the network.
func (t SourceType) IsRemote() bool {
	return t == SourceTypeHTTP || t == SourceTypeRSS
}

// LocalDir resolves the directory path of a local source. The locator may be
// a bare path or a file:// URL.
func (s *Source) LocalDir() string {
	if u, err := url.Parse(s.URL); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return s.URL
}
