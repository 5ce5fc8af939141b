package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newsweaver/newsweaver/internal/models"
)

// ErrDuplicateURL is returned when creating a source whose locator is
// already registered.
var ErrDuplicateURL = errors.New("source url already registered")

// SourceRepository persists the source registry in the pipeline store.
type SourceRepository struct {
	db *sql.DB
}

// NewSourceRepository creates a source repository backed by the pipeline store.
func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// Create registers a new source and fills in its assigned id.
func (r *SourceRepository) Create(ctx context.Context, source *models.Source) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sources (url, source_type, schedule, last_scraped_at)
		VALUES (?, ?, ?, ?)
	`, source.URL, string(source.Type), source.Schedule, formatNullableTime(source.LastScrapedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateURL
		}
		return fmt.Errorf("insert source: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("source insert id: %w", err)
	}
	source.ID = id
	return nil
}

// GetByID retrieves a source by id. Returns nil and no error when absent.
func (r *SourceRepository) GetByID(ctx context.Context, id int64) (*models.Source, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, url, source_type, schedule, last_scraped_at
		FROM sources WHERE id = ?
	`, id)
	return scanSource(row)
}

// GetByURL retrieves a source by its locator. Returns nil and no error when
// absent.
func (r *SourceRepository) GetByURL(ctx context.Context, url string) (*models.Source, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, url, source_type, schedule, last_scraped_at
		FROM sources WHERE url = ?
	`, url)
	return scanSource(row)
}

// List returns all registered sources ordered by id.
func (r *SourceRepository) List(ctx context.Context) ([]models.Source, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, url, source_type, schedule, last_scraped_at
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		var (
			s           models.Source
			sourceType  string
			lastScraped sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.URL, &sourceType, &s.Schedule, &lastScraped); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		s.Type = models.SourceType(sourceType)
		s.LastScrapedAt = parseNullableTime(lastScraped)
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return sources, nil
}

// Update modifies the mutable attributes of a source.
func (r *SourceRepository) Update(ctx context.Context, source models.Source) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources SET url = ?, source_type = ?, schedule = ? WHERE id = ?
	`, source.URL, string(source.Type), source.Schedule, source.ID)
	if err != nil {
		return fmt.Errorf("update source %d: %w", source.ID, err)
	}
	return nil
}

// Delete removes a source from the registry. The pipeline never calls this;
// it exists for the admin flow.
func (r *SourceRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	return nil
}

// TouchLastScraped advances the last-run timestamp inside tx, so it commits
// atomically with the sweep's inserted rows.
func (r *SourceRepository) TouchLastScraped(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE sources SET last_scraped_at = ? WHERE id = ?", formatTime(at), id,
	); err != nil {
		return fmt.Errorf("touch last_scraped_at: %w", err)
	}
	return nil
}

// Begin opens a transaction on the pipeline store for a sweep unit of work.
func (r *SourceRepository) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sweep transaction: %w", err)
	}
	return tx, nil
}

func scanSource(row *sql.Row) (*models.Source, error) {
	var (
		s           models.Source
		sourceType  string
		lastScraped sql.NullString
	)
	err := row.Scan(&s.ID, &s.URL, &sourceType, &s.Schedule, &lastScraped)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	s.Type = models.SourceType(sourceType)
	s.LastScrapedAt = parseNullableTime(lastScraped)
	return &s, nil
}
