package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/newsweaver/newsweaver/internal/models"
)

// ScrapedFileRepository persists captured-file records in the pipeline store.
type ScrapedFileRepository struct {
	db *sql.DB
}

// NewScrapedFileRepository creates a scraped-file repository backed by the
// pipeline store.
func NewScrapedFileRepository(db *sql.DB) *ScrapedFileRepository {
	return &ScrapedFileRepository{db: db}
}

const scrapedFileColumns = "id, source_id, local_path, filename, mimetype, scraped_at, status, retry_count, notes"

// Insert records a newly captured blob. When tx is non-nil the insert joins
// the sweep's unit of work.
func (r *ScrapedFileRepository) Insert(ctx context.Context, tx *sql.Tx, file *models.ScrapedFile) error {
	const q = `
		INSERT INTO scraped_files (source_id, local_path, filename, mimetype, scraped_at, status, retry_count, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	args := []any{
		file.SourceID, file.LocalPath, file.Filename, file.Mimetype,
		formatTime(file.ScrapedAt), string(file.Status), file.RetryCount, file.Notes,
	}

	var (
		res sql.Result
		err error
	)
	if tx != nil {
		res, err = tx.ExecContext(ctx, q, args...)
	} else {
		res, err = r.db.ExecContext(ctx, q, args...)
	}
	if err != nil {
		return fmt.Errorf("insert scraped file: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("scraped file insert id: %w", err)
	}
	file.ID = id
	return nil
}

// GetByID retrieves one record. Returns nil and no error when absent.
func (r *ScrapedFileRepository) GetByID(ctx context.Context, id int64) (*models.ScrapedFile, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+scrapedFileColumns+" FROM scraped_files WHERE id = ?", id)

	f, err := scanScrapedFile(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// HasActive reports whether a row for (sourceID, filename) is currently
// PENDING or IN_PROGRESS. Guards against re-ingesting a file still being
// handled.
func (r *ScrapedFileRepository) HasActive(ctx context.Context, sourceID int64, filename string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM scraped_files
			WHERE source_id = ? AND filename = ? AND status IN (?, ?)
		)
	`, sourceID, filename, string(models.StatusPending), string(models.StatusInProgress)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active scraped file: %w", err)
	}
	return exists, nil
}

// LatestSignature returns the notes field of the most recent row for
// (sourceID, filename), used by the skip-unchanged ingestion policy.
// Empty string when no prior row exists.
func (r *ScrapedFileRepository) LatestSignature(ctx context.Context, sourceID int64, filename string) (string, error) {
	var notes string
	err := r.db.QueryRowContext(ctx, `
		SELECT notes FROM scraped_files
		WHERE source_id = ? AND filename = ?
		ORDER BY scraped_at DESC, id DESC LIMIT 1
	`, sourceID, filename).Scan(&notes)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query latest signature: %w", err)
	}
	return notes, nil
}

// ClaimBatch selects up to limit rows eligible for transformation (PENDING
// or LOAD_FAILED, oldest first) and flips them to IN_PROGRESS inside one
// transaction. The returned records already carry the IN_PROGRESS status.
// The select-and-flip commits before any extraction work begins, so a
// concurrent batch cannot claim the same rows.
func (r *ScrapedFileRepository) ClaimBatch(ctx context.Context, limit int) ([]models.ScrapedFile, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+scrapedFileColumns+`
		FROM scraped_files
		WHERE status IN (?, ?)
		ORDER BY scraped_at ASC, id ASC
		LIMIT ?
	`, string(models.StatusPending), string(models.StatusLoadFailed), limit)
	if err != nil {
		return nil, fmt.Errorf("select claimable files: %w", err)
	}

	var batch []models.ScrapedFile
	for rows.Next() {
		f, err := scanScrapedFile(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, err
		}
		batch = append(batch, *f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate claimable files: %w", err)
	}
	rows.Close()

	if len(batch) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]string, len(batch))
	args := make([]any, 0, len(batch)+2)
	args = append(args, string(models.StatusInProgress))
	for i, f := range batch {
		ids[i] = "?"
		args = append(args, f.ID)
	}
	// Re-check the status in the predicate: a row claimed by another writer
	// between our read and this write stays untouched.
	args = append(args, string(models.StatusPending), string(models.StatusLoadFailed))

	res, err := tx.ExecContext(ctx, `
		UPDATE scraped_files SET status = ?
		WHERE id IN (`+strings.Join(ids, ", ")+`) AND status IN (?, ?)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("claim files: %w", err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim rows affected: %w", err)
	}
	if claimed != int64(len(batch)) {
		// Lost part of the batch to a concurrent claimer; surrender it all
		// and let the next run re-select.
		return nil, fmt.Errorf("claim conflict: wanted %d rows, got %d", len(batch), claimed)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	for i := range batch {
		batch[i].Status = models.StatusInProgress
	}
	return batch, nil
}

// SetStatus applies a lifecycle transition and commits it immediately. The
// transition function rejects illegal moves before anything is written.
// Notes are replaced wholesale; pass "" to clear them.
func (r *ScrapedFileRepository) SetStatus(ctx context.Context, file *models.ScrapedFile, next models.FileStatus, notes string) error {
	if err := file.Transition(next); err != nil {
		return err
	}
	file.Notes = notes

	_, err := r.db.ExecContext(ctx, `
		UPDATE scraped_files SET status = ?, retry_count = ?, notes = ? WHERE id = ?
	`, string(file.Status), file.RetryCount, file.Notes, file.ID)
	if err != nil {
		return fmt.Errorf("update scraped file %d status: %w", file.ID, err)
	}
	return nil
}

// CountByStatus returns row counts per lifecycle status, for the pipeline
// status endpoint.
func (r *ScrapedFileRepository) CountByStatus(ctx context.Context) (map[models.FileStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM scraped_files GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count files by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.FileStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.FileStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func scanScrapedFile(scan func(dest ...any) error) (*models.ScrapedFile, error) {
	var (
		f         models.ScrapedFile
		status    string
		scrapedAt string
	)
	err := scan(&f.ID, &f.SourceID, &f.LocalPath, &f.Filename, &f.Mimetype,
		&scrapedAt, &status, &f.RetryCount, &f.Notes)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan scraped file: %w", err)
	}

	f.Status = models.FileStatus(status)
	if f.ScrapedAt, err = parseTime(scrapedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
