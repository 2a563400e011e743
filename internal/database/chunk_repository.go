package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dev.helix.onboarding/internal/models"
)

// ChunkFilter contains filter options for listing chunks.
type ChunkFilter struct {
	Department string
	Source     string
	Limit      int
	Offset     int
}

// ChunkRepository persists chunk metadata alongside the vector store. The
// vector store (C2) holds the embedding and is the source of truth for
// similarity search; this repository holds everything ingestion (C4)
// produces around a chunk so it can be reingested, audited or deleted by
// source without recomputing embeddings.
type ChunkRepository struct {
	pool *pgxpool.Pool
}

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{pool: pool}
}

// Upsert inserts or replaces a chunk's metadata row, keyed by its stable chunk ID.
func (r *ChunkRepository) Upsert(ctx context.Context, c *models.Chunk) error {
	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk metadata: %w", err)
	}

	query := `
		INSERT INTO chunks (id, source, department, section, chunk_index, text, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			department = EXCLUDED.department,
			section = EXCLUDED.section,
			chunk_index = EXCLUDED.chunk_index,
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata
	`
	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx, query,
		c.ID, c.Source, c.Department, c.Section, c.ChunkIndex, c.Text, metaJSON, now)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	c.CreatedAt = now
	return nil
}

// GetByID retrieves a chunk by its ID.
func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*models.Chunk, error) {
	query := `
		SELECT id, source, department, section, chunk_index, text, metadata, created_at
		FROM chunks WHERE id = $1
	`
	c := &models.Chunk{}
	var metaJSON []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Source, &c.Department, &c.Section, &c.ChunkIndex, &c.Text, &metaJSON, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("chunk %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
	}
	return c, nil
}

// ListBySource returns every chunk produced from a given source document,
// ordered by chunk_index, used by reingestion to replace a document's chunks.
func (r *ChunkRepository) ListBySource(ctx context.Context, source string) ([]*models.Chunk, error) {
	query := `
		SELECT id, source, department, section, chunk_index, text, metadata, created_at
		FROM chunks WHERE source = $1 ORDER BY chunk_index ASC
	`
	rows, err := r.pool.Query(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks by source: %w", err)
	}
	defer rows.Close()

	var out []*models.Chunk
	for rows.Next() {
		c := &models.Chunk{}
		var metaJSON []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.Department, &c.Section, &c.ChunkIndex, &c.Text, &metaJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteBySource removes all chunk metadata rows for a source document,
// mirroring a reset_and_reingest collection reset on the vector store side.
func (r *ChunkRepository) DeleteBySource(ctx context.Context, source string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chunks WHERE source = $1`, source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks by source: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List returns chunks matching the given filter, used for operator tooling.
func (r *ChunkRepository) List(ctx context.Context, f ChunkFilter) ([]*models.Chunk, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query := `
		SELECT id, source, department, section, chunk_index, text, metadata, created_at
		FROM chunks
		WHERE ($1 = '' OR department = $1) AND ($2 = '' OR source = $2)
		ORDER BY source, chunk_index
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, f.Department, f.Source, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var out []*models.Chunk
	for rows.Next() {
		c := &models.Chunk{}
		var metaJSON []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.Department, &c.Section, &c.ChunkIndex, &c.Text, &metaJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		_ = json.Unmarshal(metaJSON, &c.Metadata)
		out = append(out, c)
	}
	return out, rows.Err()
}
