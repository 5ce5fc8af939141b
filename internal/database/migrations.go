package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// migration is one versioned schema step. Statements run inside a single
// transaction together with the schema_migrations bookkeeping row.
type migration struct {
	version string
	sql     string
}

var pipelineMigrations = []migration{
	{
		version: "001_pipeline_schema",
		sql: `
			CREATE TABLE IF NOT EXISTS sources (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				url             TEXT NOT NULL UNIQUE,
				source_type     TEXT NOT NULL,
				schedule        TEXT NOT NULL,
				last_scraped_at TEXT
			);

			CREATE TABLE IF NOT EXISTS scraped_files (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				source_id   INTEGER NOT NULL REFERENCES sources(id),
				local_path  TEXT NOT NULL,
				filename    TEXT NOT NULL,
				mimetype    TEXT NOT NULL,
				scraped_at  TEXT NOT NULL,
				status      TEXT NOT NULL DEFAULT 'PENDING',
				retry_count INTEGER NOT NULL DEFAULT 0,
				notes       TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX IF NOT EXISTS idx_scraped_files_status
				ON scraped_files(status, scraped_at);
			CREATE INDEX IF NOT EXISTS idx_scraped_files_source_filename
				ON scraped_files(source_id, filename);
		`,
	},
}

var contentMigrations = []migration{
	{
		version: "001_content_schema",
		sql: `
			CREATE TABLE IF NOT EXISTS articles (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				source_file_id INTEGER NOT NULL UNIQUE,
				url            TEXT NOT NULL,
				title          TEXT,
				content        TEXT NOT NULL,
				language       TEXT,
				ingested_at    TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS documents (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				source_file_id INTEGER NOT NULL UNIQUE,
				url            TEXT NOT NULL,
				filename       TEXT NOT NULL,
				mimetype       TEXT NOT NULL,
				content        TEXT NOT NULL,
				ingested_at    TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS spreadsheets (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				source_file_id INTEGER NOT NULL UNIQUE,
				url            TEXT NOT NULL,
				filename       TEXT NOT NULL,
				mimetype       TEXT NOT NULL,
				data_json      TEXT NOT NULL,
				ingested_at    TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS images (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				source_file_id   INTEGER NOT NULL UNIQUE,
				url              TEXT NOT NULL,
				mimetype         TEXT NOT NULL,
				extracted_text   TEXT,
				detected_objects TEXT,
				image_metadata   TEXT,
				ingested_at      TEXT NOT NULL
			);
		`,
	},
}

// runMigrations applies all pending migrations in order, tracking applied
// versions in schema_migrations.
func runMigrations(ctx context.Context, db *sql.DB, migrations []migration, logger *slog.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}

		logger.Info("applying migration", "version", m.version)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			m.version, formatTime(time.Now()),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.version, err)
		}
	}

	return nil
}
