package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"log/slog"

	"github.com/newsweaver/newsweaver/internal/config"
	"github.com/newsweaver/newsweaver/internal/database"
	"github.com/newsweaver/newsweaver/internal/metrics"
	"github.com/newsweaver/newsweaver/internal/models"
)

// Scraper drives capture runs: it fetches a source's current content, writes
// blobs, and records PENDING rows. All rows of one run are committed in a
// single transaction together with the source's last_scraped_at update, so a
// crash mid-run leaves no half-recorded state.
type Scraper struct {
	cfg     config.ScraperConfig
	sources *database.SourceRepository
	files   *database.ScrapedFileRepository
	blobs   *BlobStore
	fetcher *Fetcher
	logger  *slog.Logger
	metrics *metrics.Collector
}

func New(cfg config.ScraperConfig, sources *database.SourceRepository, files *database.ScrapedFileRepository, blobs *BlobStore, logger *slog.Logger, collector *metrics.Collector) *Scraper {
	return &Scraper{
		cfg:     cfg,
		sources: sources,
		files:   files,
		blobs:   blobs,
		fetcher: NewFetcher(cfg),
		logger:  logger,
		metrics: collector,
	}
}

// RunAll captures every registered source. A failing source is logged and
// skipped; one broken feed must not stall the rest of the schedule.
func (s *Scraper) RunAll(ctx context.Context) error {
	sources, err := s.sources.List(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	for i := range sources {
		if err := s.RunSource(ctx, &sources[i]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("source capture failed", "source_id", sources[i].ID, "url", sources[i].URL, "error", err)
		}
	}
	return nil
}

// RunSource captures one source and commits the results.
func (s *Scraper) RunSource(ctx context.Context, src *models.Source) error {
	logger := s.logger.With("run_id", uuid.NewString(), "source_id", src.ID, "source_type", string(src.Type))
	logger.Info("starting capture run", "url", src.URL)

	var (
		captured []models.ScrapedFile
		err      error
	)
	switch src.Type {
	case models.SourceTypeHTTP:
		captured, err = s.captureHTTP(ctx, logger, src)
	case models.SourceTypeRSS:
		captured, err = s.captureRSS(ctx, logger, src)
	case models.SourceTypeLocal:
		captured, err = s.sweepLocal(ctx, logger, src)
	default:
		return fmt.Errorf("unknown source type %q", src.Type)
	}
	if err != nil {
		return err
	}

	if err := s.commit(ctx, src, captured); err != nil {
		return err
	}

	for range captured {
		s.metrics.FileScraped(string(src.Type))
	}
	logger.Info("capture run finished", "files", len(captured))
	return nil
}

// captureHTTP fetches the source URL as a single page. An upstream failure
// status produces no row but still counts as a completed run, so the source
// timestamp advances.
func (s *Scraper) captureHTTP(ctx context.Context, logger *slog.Logger, src *models.Source) ([]models.ScrapedFile, error) {
	file, err := s.captureURL(ctx, logger, src, src.URL)
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			logger.Warn("upstream returned failure status, nothing captured", "url", upstream.URL, "status", upstream.StatusCode)
			return nil, nil
		}
		return nil, err
	}
	if file == nil {
		return nil, nil
	}
	return []models.ScrapedFile{*file}, nil
}

// captureRSS fetches the feed, then each entry it links to. Entry failures
// are logged and skipped; the rest of the feed still lands.
func (s *Scraper) captureRSS(ctx context.Context, logger *slog.Logger, src *models.Source) ([]models.ScrapedFile, error) {
	feed, err := s.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			logger.Warn("feed returned failure status, nothing captured", "url", upstream.URL, "status", upstream.StatusCode)
			return nil, nil
		}
		return nil, err
	}

	items, err := ParseFeed(feed.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.URL, err)
	}
	logger.Info("parsed feed", "items", len(items))

	var captured []models.ScrapedFile
	seen := map[string]bool{}
	for _, item := range items {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		link := absoluteLink(src.URL, item.Link)
		file, err := s.captureURL(ctx, logger, src, link)
		if err != nil {
			logger.Warn("feed entry capture failed", "link", link, "title", item.Title, "error", err)
			continue
		}
		if file == nil || seen[file.Filename] {
			continue
		}
		seen[file.Filename] = true
		captured = append(captured, *file)
	}
	return captured, nil
}

// captureURL fetches one URL into the blob store. Returns (nil, nil) when an
// active row for the same filename already holds the slot.
func (s *Scraper) captureURL(ctx context.Context, logger *slog.Logger, src *models.Source, url string) (*models.ScrapedFile, error) {
	fetched, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	active, err := s.files.HasActive(ctx, src.ID, fetched.Filename)
	if err != nil {
		return nil, err
	}
	if active {
		logger.Debug("skipping capture, active row exists", "filename", fetched.Filename)
		return nil, nil
	}

	path, err := s.blobs.Save(src.ID, fetched.Filename, bytes.NewReader(fetched.Body))
	if err != nil {
		return nil, err
	}
	logger.Info("captured file", "filename", fetched.Filename, "mimetype", fetched.Mimetype, "bytes", len(fetched.Body))

	return &models.ScrapedFile{
		SourceID:  src.ID,
		LocalPath: path,
		Filename:  fetched.Filename,
		Mimetype:  fetched.Mimetype,
		ScrapedAt: time.Now().UTC(),
		Status:    models.StatusPending,
	}, nil
}

// commit inserts the run's rows and advances last_scraped_at atomically.
func (s *Scraper) commit(ctx context.Context, src *models.Source, captured []models.ScrapedFile) error {
	tx, err := s.sources.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin capture transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range captured {
		if err := s.files.Insert(ctx, tx, &captured[i]); err != nil {
			return fmt.Errorf("record captured file %s: %w", captured[i].Filename, err)
		}
	}

	now := time.Now().UTC()
	if err := s.sources.TouchLastScraped(ctx, tx, src.ID, now); err != nil {
		return fmt.Errorf("advance last_scraped_at: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit capture run: %w", err)
	}
	src.LastScrapedAt = &now
	return nil
}
