package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/newsweaver/newsweaver/internal/models"
)

// ContentRepository persists typed content records in the content store.
// Each table carries a unique constraint on source_file_id; callers are
// expected to check Exists first and treat a duplicate as "already exists".
type ContentRepository struct {
	db *sql.DB
}

// NewContentRepository creates a content repository backed by the content
// store.
func NewContentRepository(db *sql.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Exists reports whether a record for the idempotency key is already stored
// under the given content kind.
func (r *ContentRepository) Exists(ctx context.Context, kind models.ContentKind, sourceFileID int64) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	var exists bool
	err = r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM "+table+" WHERE source_file_id = ?)", sourceFileID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s existence: %w", table, err)
	}
	return exists, nil
}

// InsertArticle stores an article record.
func (r *ContentRepository) InsertArticle(ctx context.Context, p models.ArticlePayload) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO articles (source_file_id, url, title, content, language, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.SourceFileID, p.URL, p.Title, p.Content, p.Language, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert article %d: %w", p.SourceFileID, err)
	}
	return nil
}

// InsertDocument stores a document record.
func (r *ContentRepository) InsertDocument(ctx context.Context, p models.DocumentPayload) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (source_file_id, url, filename, mimetype, content, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.SourceFileID, p.URL, p.Filename, p.Mimetype, p.Content, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert document %d: %w", p.SourceFileID, err)
	}
	return nil
}

// InsertSpreadsheet stores a spreadsheet record. Rows are serialized to a
// JSON text column and round-trip back through GetSpreadsheetRows.
func (r *ContentRepository) InsertSpreadsheet(ctx context.Context, p models.SpreadsheetPayload) error {
	rowsJSON, err := json.Marshal(p.Rows)
	if err != nil {
		return fmt.Errorf("marshal spreadsheet rows: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO spreadsheets (source_file_id, url, filename, mimetype, data_json, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.SourceFileID, p.URL, p.Filename, p.Mimetype, string(rowsJSON), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert spreadsheet %d: %w", p.SourceFileID, err)
	}
	return nil
}

// InsertImage stores an image record. The object list and metadata map are
// serialized to JSON text columns.
func (r *ContentRepository) InsertImage(ctx context.Context, p models.ImagePayload) error {
	objects := p.DetectedObjects
	if objects == nil {
		objects = []string{}
	}
	metadata := p.ImageMetadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	objectsJSON, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("marshal detected objects: %w", err)
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal image metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO images (source_file_id, url, mimetype, extracted_text, detected_objects, image_metadata, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.SourceFileID, p.URL, p.Mimetype, p.ExtractedText, string(objectsJSON), string(metadataJSON), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert image %d: %w", p.SourceFileID, err)
	}
	return nil
}

// GetArticle retrieves an article by its idempotency key. Returns nil and no
// error when absent.
func (r *ContentRepository) GetArticle(ctx context.Context, sourceFileID int64) (*models.ArticlePayload, error) {
	var p models.ArticlePayload
	err := r.db.QueryRowContext(ctx, `
		SELECT source_file_id, url, title, content, language
		FROM articles WHERE source_file_id = ?
	`, sourceFileID).Scan(&p.SourceFileID, &p.URL, &p.Title, &p.Content, &p.Language)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query article %d: %w", sourceFileID, err)
	}
	return &p, nil
}

// GetSpreadsheetRows retrieves and deserializes the tabular rows stored for
// the idempotency key. Returns nil and no error when absent.
func (r *ContentRepository) GetSpreadsheetRows(ctx context.Context, sourceFileID int64) ([]map[string]any, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		"SELECT data_json FROM spreadsheets WHERE source_file_id = ?", sourceFileID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query spreadsheet %d: %w", sourceFileID, err)
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("unmarshal spreadsheet rows: %w", err)
	}
	return rows, nil
}

// GetImage retrieves an image record by its idempotency key, deserializing
// the object list and metadata map. Returns nil and no error when absent.
func (r *ContentRepository) GetImage(ctx context.Context, sourceFileID int64) (*models.ImagePayload, error) {
	var (
		p            models.ImagePayload
		objectsJSON  string
		metadataJSON string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT source_file_id, url, mimetype, extracted_text, detected_objects, image_metadata
		FROM images WHERE source_file_id = ?
	`, sourceFileID).Scan(&p.SourceFileID, &p.URL, &p.Mimetype, &p.ExtractedText, &objectsJSON, &metadataJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query image %d: %w", sourceFileID, err)
	}

	if err := json.Unmarshal([]byte(objectsJSON), &p.DetectedObjects); err != nil {
		return nil, fmt.Errorf("unmarshal detected objects: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &p.ImageMetadata); err != nil {
		return nil, fmt.Errorf("unmarshal image metadata: %w", err)
	}
	return &p, nil
}

func tableFor(kind models.ContentKind) (string, error) {
	switch kind {
	case models.KindArticle:
		return "articles", nil
	case models.KindDocument:
		return "documents", nil
	case models.KindSpreadsheet:
		return "spreadsheets", nil
	case models.KindImage:
		return "images", nil
	default:
		return "", fmt.Errorf("unknown content kind: %s", kind)
	}
}
