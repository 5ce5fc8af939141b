// Package transform runs the extract-and-deliver stage. Each batch claims
// eligible rows, converts their blobs into typed payloads through the
// extraction dispatch table, and pushes the payloads to the loader.
package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/panjf2000/ants/v2"
	"log/slog"

	"github.com/newsweaver/newsweaver/internal/config"
	"github.com/newsweaver/newsweaver/internal/database"
	"github.com/newsweaver/newsweaver/internal/extraction"
	"github.com/newsweaver/newsweaver/internal/metrics"
	"github.com/newsweaver/newsweaver/internal/models"
)

// Deliverer pushes one payload to the loader.
type Deliverer interface {
	Deliver(ctx context.Context, payload models.Payload) error
}

// Summary reports the outcome of one batch run.
type Summary struct {
	Claimed         int
	Processed       int
	LoadFailed      int
	TransformFailed int
	DeadLettered    int
}

// Transformer executes batch runs. Workers is a throughput policy: with 1
// the batch runs strictly sequentially; with more, extraction and delivery
// fan out to a goroutine pool while every store write stays on the batch
// goroutine, preserving the single-writer discipline.
type Transformer struct {
	cfg      config.TransformConfig
	files    *database.ScrapedFileRepository
	sources  *database.SourceRepository
	dispatch *extraction.Dispatcher
	deliver  Deliverer
	logger   *slog.Logger
	metrics  *metrics.Collector
}

func New(cfg config.TransformConfig, files *database.ScrapedFileRepository, sources *database.SourceRepository, deliver Deliverer, logger *slog.Logger, collector *metrics.Collector) *Transformer {
	return &Transformer{
		cfg:      cfg,
		files:    files,
		sources:  sources,
		dispatch: extraction.NewDispatcher(),
		deliver:  deliver,
		logger:   logger,
		metrics:  collector,
	}
}

// outcome is the decision made for one file, applied to the store afterward.
type outcome struct {
	next  models.FileStatus
	notes string
	// deadLetter marks a delivery failure that exhausted the retry budget;
	// the row passes through LOAD_FAILED on its way to DEAD_LETTER so the
	// lifecycle stays legal.
	deadLetter bool
}

// RunBatch claims up to the configured batch size and processes every
// claimed row to a settled status. The returned summary counts outcomes;
// the error covers batch-level failures only, individual file failures are
// recorded on their rows.
func (t *Transformer) RunBatch(ctx context.Context) (Summary, error) {
	batch, err := t.files.ClaimBatch(ctx, t.cfg.BatchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("claim batch: %w", err)
	}
	summary := Summary{Claimed: len(batch)}
	if len(batch) == 0 {
		return summary, nil
	}
	t.logger.Info("claimed transform batch", "files", len(batch))

	urls, err := t.sourceURLs(ctx, batch)
	if err != nil {
		return summary, err
	}

	outcomes := make([]outcome, len(batch))
	if t.cfg.Workers > 1 {
		if err := t.processParallel(ctx, batch, urls, outcomes); err != nil {
			return summary, err
		}
	} else {
		for i := range batch {
			outcomes[i] = t.process(ctx, &batch[i], urls[batch[i].SourceID])
		}
	}

	// All writes happen here, on the batch goroutine.
	for i := range batch {
		if err := t.apply(ctx, &batch[i], outcomes[i], &summary); err != nil {
			return summary, err
		}
	}

	t.logger.Info("transform batch finished",
		"claimed", summary.Claimed,
		"processed", summary.Processed,
		"load_failed", summary.LoadFailed,
		"transform_failed", summary.TransformFailed,
		"dead_lettered", summary.DeadLettered)
	return summary, nil
}

// RunAll drains the queue batch by batch until no eligible rows remain.
func (t *Transformer) RunAll(ctx context.Context) (Summary, error) {
	var total Summary
	for {
		s, err := t.RunBatch(ctx)
		total.Claimed += s.Claimed
		total.Processed += s.Processed
		total.LoadFailed += s.LoadFailed
		total.TransformFailed += s.TransformFailed
		total.DeadLettered += s.DeadLettered
		if err != nil {
			return total, err
		}
		if s.Claimed == 0 {
			return total, nil
		}
		// Rows that just moved to LOAD_FAILED are eligible again; draining
		// them now would spin on a broken loader, so stop once a full pass
		// settles nothing.
		if s.Processed == 0 && s.TransformFailed == 0 && s.DeadLettered == 0 {
			return total, nil
		}
	}
}

// sourceURLs resolves the origin URL for each distinct source in the batch.
// Reads happen up front so worker goroutines never touch the store.
func (t *Transformer) sourceURLs(ctx context.Context, batch []models.ScrapedFile) (map[int64]string, error) {
	urls := make(map[int64]string)
	for i := range batch {
		id := batch[i].SourceID
		if _, ok := urls[id]; ok {
			continue
		}
		src, err := t.sources.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve source %d: %w", id, err)
		}
		if src != nil {
			urls[id] = src.URL
		} else {
			urls[id] = ""
		}
	}
	return urls, nil
}

func (t *Transformer) processParallel(ctx context.Context, batch []models.ScrapedFile, urls map[int64]string, outcomes []outcome) error {
	pool, err := ants.NewPool(t.cfg.Workers)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range batch {
		i := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = t.process(ctx, &batch[i], urls[batch[i].SourceID])
		}); err != nil {
			wg.Done()
			return fmt.Errorf("submit transform job: %w", err)
		}
	}
	wg.Wait()
	return nil
}

// process takes one claimed file to a settled decision: extract, build the
// payload, deliver. It performs no store writes.
func (t *Transformer) process(ctx context.Context, file *models.ScrapedFile, sourceURL string) outcome {
	logger := t.logger.With("file_id", file.ID, "filename", file.Filename, "mimetype", file.Mimetype)

	if _, err := os.Stat(file.LocalPath); err != nil {
		logger.Error("blob missing from disk", "path", file.LocalPath)
		return outcome{next: models.StatusTransformFailed, notes: "File not found on disk"}
	}

	rule, err := t.dispatch.Resolve(file.Mimetype)
	if err != nil {
		logger.Error("no extraction strategy for mimetype", "error", err)
		return outcome{next: models.StatusTransformFailed, notes: fmt.Sprintf("unsupported mimetype %q", file.Mimetype)}
	}

	result, err := rule.Strategy.Extract(file.LocalPath, file.Mimetype)
	if err != nil {
		logger.Error("extraction failed", "strategy", rule.Name, "error", err)
		var extErr *extraction.ExtractionError
		if errors.As(err, &extErr) {
			return outcome{next: models.StatusTransformFailed, notes: extErr.Error()}
		}
		return outcome{next: models.StatusTransformFailed, notes: err.Error()}
	}

	payload := buildPayload(rule.Kind, file, sourceURL, result)
	if err := t.deliver.Deliver(ctx, payload); err != nil {
		logger.Warn("delivery failed", "endpoint", rule.Kind.Endpoint(), "error", err)
		return outcome{
			next:       models.StatusLoadFailed,
			notes:      err.Error(),
			deadLetter: file.RetryCount+1 >= t.cfg.MaxLoadAttempts,
		}
	}

	logger.Info("file transformed", "kind", string(rule.Kind))
	return outcome{next: models.StatusProcessed}
}

// apply writes one outcome to the store and updates the summary.
func (t *Transformer) apply(ctx context.Context, file *models.ScrapedFile, o outcome, summary *Summary) error {
	switch o.next {
	case models.StatusProcessed:
		if err := t.files.SetStatus(ctx, file, models.StatusProcessed, ""); err != nil {
			return err
		}
		summary.Processed++
	case models.StatusTransformFailed:
		if err := t.files.SetStatus(ctx, file, models.StatusTransformFailed, o.notes); err != nil {
			return err
		}
		summary.TransformFailed++
	case models.StatusLoadFailed:
		file.RetryCount++
		if err := t.files.SetStatus(ctx, file, models.StatusLoadFailed, o.notes); err != nil {
			return err
		}
		if o.deadLetter {
			if err := t.files.SetStatus(ctx, file, models.StatusDeadLetter, o.notes); err != nil {
				return err
			}
			t.logger.Error("file moved to dead letter", "file_id", file.ID, "retry_count", file.RetryCount)
			summary.DeadLettered++
		} else {
			summary.LoadFailed++
		}
	default:
		return fmt.Errorf("unexpected outcome status %q for file %d", o.next, file.ID)
	}
	t.metrics.FileTransformed(string(file.Status))
	return nil
}

// buildPayload shapes the extraction result into the loader contract for the
// resolved content kind.
func buildPayload(kind models.ContentKind, file *models.ScrapedFile, sourceURL string, result *extraction.Result) models.Payload {
	meta := models.PayloadMeta{
		SourceFileID: file.ID,
		URL:          sourceURL,
		Mimetype:     file.Mimetype,
	}
	switch kind {
	case models.KindArticle:
		return models.ArticlePayload{
			PayloadMeta: meta,
			Title:       result.Title,
			Content:     result.Text,
			Language:    "en",
		}
	case models.KindSpreadsheet:
		return models.SpreadsheetPayload{
			PayloadMeta: meta,
			Filename:    file.Filename,
			Rows:        result.Rows,
		}
	case models.KindImage:
		return models.ImagePayload{
			PayloadMeta:     meta,
			ExtractedText:   result.Text,
			DetectedObjects: result.Objects,
			ImageMetadata:   result.Metadata,
		}
	default:
		return models.DocumentPayload{
			PayloadMeta: meta,
			Filename:    file.Filename,
			Content:     result.Text,
		}
	}
}
