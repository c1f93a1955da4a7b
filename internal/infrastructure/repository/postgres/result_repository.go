package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
)

type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ResultRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across status/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS processing_results (
	id TEXT PRIMARY KEY,
	ai_response TEXT NOT NULL,
	ai_summary TEXT NOT NULL DEFAULT '',
	file_type TEXT NOT NULL,
	blob_name TEXT NOT NULL,
	original_filename TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	file_size_bytes BIGINT NOT NULL DEFAULT 0,
	page_count INTEGER NOT NULL DEFAULT 0,
	content_text TEXT NOT NULL DEFAULT '',
	attempt INTEGER NOT NULL DEFAULT 0,
	processing_start TIMESTAMPTZ NOT NULL,
	processing_end TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processing_results_end ON processing_results(processing_end DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Upsert writes the whole row in one statement; redelivered jobs overwrite
// the previous result for the same id.
func (r *ResultRepository) Upsert(ctx context.Context, result domain.Result) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO processing_results (
	id, ai_response, ai_summary, file_type, blob_name, original_filename, content_type,
	file_size_bytes, page_count, content_text, attempt, processing_start, processing_end
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
	ai_response = EXCLUDED.ai_response,
	ai_summary = EXCLUDED.ai_summary,
	file_type = EXCLUDED.file_type,
	blob_name = EXCLUDED.blob_name,
	original_filename = EXCLUDED.original_filename,
	content_type = EXCLUDED.content_type,
	file_size_bytes = EXCLUDED.file_size_bytes,
	page_count = EXCLUDED.page_count,
	content_text = EXCLUDED.content_text,
	attempt = EXCLUDED.attempt,
	processing_start = EXCLUDED.processing_start,
	processing_end = EXCLUDED.processing_end
`,
		result.ID, result.AIResponse, result.AISummary, string(result.FileType), result.BlobName,
		result.OriginalFilename, result.ContentType, result.FileSizeBytes, result.PageCount,
		result.ContentText, result.Attempt, result.ProcessingStart, result.ProcessingEnd,
	)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (r *ResultRepository) Get(ctx context.Context, id string) (*domain.Result, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, ai_response, ai_summary, file_type, blob_name, original_filename, content_type,
	file_size_bytes, page_count, content_text, attempt, processing_start, processing_end
FROM processing_results
WHERE id = $1
`, id)

	var result domain.Result
	var fileType string
	err := row.Scan(
		&result.ID, &result.AIResponse, &result.AISummary, &fileType, &result.BlobName,
		&result.OriginalFilename, &result.ContentType, &result.FileSizeBytes, &result.PageCount,
		&result.ContentText, &result.Attempt, &result.ProcessingStart, &result.ProcessingEnd,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrResultNotFound, "get result", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan result: %w", err)
	}
	result.FileType = domain.FileType(fileType)
	return &result, nil
}
