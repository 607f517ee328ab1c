// Package extraction is the append-only extraction history store, grounded
// on ares-db/src/repository.rs and the column-list idiom of
// internal/queue.
package extraction

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/andreabozzo/ares/internal/apperrors"
	"github.com/andreabozzo/ares/internal/domain"
)

// ErrNotFound is returned by GetLatest when no extraction exists yet for a
// (url, schema_name) pair.
var ErrNotFound = errors.New("no extraction found")

const extractionColumns = `id, url, schema_name, extracted_data, raw_content_hash, data_hash, model, created_at`

// Store is the Postgres-backed extraction history repository.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-connected sqlx.DB.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Save inserts a new extraction row and returns its generated id. Rows are
// never updated or deleted: every successful pipeline run appends a new
// row, forming a full history for (url, schema_name).
func (s *Store) Save(ctx context.Context, ex domain.NewExtraction) (uuid.UUID, error) {
	query := `INSERT INTO extractions (url, schema_name, extracted_data, raw_content_hash, data_hash, model)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id uuid.UUID
	err := s.db.QueryRowxContext(ctx, query,
		ex.URL, ex.SchemaName, ex.ExtractedData, ex.RawContentHash, ex.DataHash, ex.Model,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, apperrors.NewDatabase("save extraction", err)
	}
	return id, nil
}

// GetLatest returns the most recent extraction for (url, schema_name), or
// ErrNotFound if none exists yet.
func (s *Store) GetLatest(ctx context.Context, url, schemaName string) (*domain.Extraction, error) {
	query := `SELECT ` + extractionColumns + `
		FROM extractions
		WHERE url = $1 AND schema_name = $2
		ORDER BY created_at DESC
		LIMIT 1`

	var ex domain.Extraction
	err := s.db.QueryRowxContext(ctx, query, url, schemaName).StructScan(&ex)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperrors.NewDatabase("get latest extraction", err)
	}
	return &ex, nil
}

// GetHistory returns up to limit extractions for (url, schema_name),
// newest first.
func (s *Store) GetHistory(ctx context.Context, url, schemaName string, limit int) ([]domain.Extraction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + extractionColumns + `
		FROM extractions
		WHERE url = $1 AND schema_name = $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := s.db.QueryxContext(ctx, query, url, schemaName, limit)
	if err != nil {
		return nil, apperrors.NewDatabase("get extraction history", err)
	}
	defer rows.Close()

	history := make([]domain.Extraction, 0, limit)
	for rows.Next() {
		var ex domain.Extraction
		if err := rows.StructScan(&ex); err != nil {
			return nil, apperrors.NewDatabase("get extraction history: scan", err)
		}
		history = append(history, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabase("get extraction history: iterate", err)
	}
	return history, nil
}

// HealthCheck confirms the underlying connection pool can reach the
// database.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var one int
	if err := s.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return apperrors.NewDatabase("extraction store health check", err)
	}
	return nil
}
