// Package postgres implements the vector index on Postgres with the
// pgvector extension.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/echochat/echochat/internal/index"
)

// Index stores chunk embeddings in the rag_chunks table and answers
// nearest-neighbor queries with the pgvector cosine operator.
type Index struct {
	pool *pgxpool.Pool
}

// New creates a pool for dsn with pgvector types registered on every
// connection.
func New(ctx context.Context, dsn string) (*Index, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &Index{pool: pool}, nil
}

// NewWithPool wraps an existing pool. The caller keeps ownership.
func NewWithPool(pool *pgxpool.Pool) *Index {
	return &Index{pool: pool}
}

// Close closes the underlying connection pool.
func (i *Index) Close() {
	i.pool.Close()
}

// Upsert writes chunks in one batch, replacing rows with the same id.
func (i *Index) Upsert(ctx context.Context, chunks []index.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO rag_chunks (id, url, title, chunk_text, chunk_index, total_chunks, is_homepage, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE
			SET url = EXCLUDED.url,
				title = EXCLUDED.title,
				chunk_text = EXCLUDED.chunk_text,
				chunk_index = EXCLUDED.chunk_index,
				total_chunks = EXCLUDED.total_chunks,
				is_homepage = EXCLUDED.is_homepage,
				embedding = EXCLUDED.embedding;
		`, c.ID, c.URL, c.Title, c.Text, c.ChunkIndex, c.TotalChunks, c.IsHomepage, pgvector.NewVector(c.Vector))
	}
	results := i.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert chunk: %w", err)
		}
	}
	return nil
}

// Query returns the limit nearest chunks by cosine distance.
func (i *Index) Query(ctx context.Context, vector []float32, limit int) ([]index.Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := i.pool.Query(ctx, `
		SELECT id, url, title, chunk_text, chunk_index, total_chunks, is_homepage,
			1 - (embedding <=> $1) AS similarity
		FROM rag_chunks
		ORDER BY embedding <=> $1
		LIMIT $2;
	`, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var matches []index.Match
	for rows.Next() {
		var m index.Match
		if err := rows.Scan(&m.ID, &m.URL, &m.Title, &m.Text, &m.ChunkIndex, &m.TotalChunks, &m.IsHomepage, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunk rows: %w", err)
	}
	return matches, nil
}

// Reset drops and recreates the rag_chunks table for the given vector
// dimensionality. Changing the embedding model therefore just needs a
// reindex, not a migration.
func (i *Index) Reset(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`DROP TABLE IF EXISTS rag_chunks;`,
		fmt.Sprintf(`CREATE TABLE rag_chunks (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			chunk_text TEXT NOT NULL,
			chunk_index INT NOT NULL,
			total_chunks INT NOT NULL DEFAULT 0,
			is_homepage BOOLEAN NOT NULL DEFAULT FALSE,
			embedding vector(%d) NOT NULL
		);`, dimensions),
	}
	for _, stmt := range statements {
		if _, err := i.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset index: %w", err)
		}
	}
	return nil
}

// Count returns the number of stored chunks.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := i.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rag_chunks;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}
