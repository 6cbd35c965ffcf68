// Package index defines the vector index contract used by the RAG
// pipeline and retriever. Implementations live in subpackages.
package index

import "context"

// Chunk is one indexed unit of page text together with its embedding.
// The ID is deterministic per (url, position) so a full reindex produces
// the same IDs for unchanged content.
type Chunk struct {
	ID         string
	URL        string
	Title      string
	Text       string
	ChunkIndex int
	// TotalChunks is how many chunks the source page produced.
	TotalChunks int
	IsHomepage  bool
	Vector      []float32
}

// Match pairs a stored chunk with its cosine similarity to the query.
type Match struct {
	Chunk
	Similarity float64
}

// Index stores chunk vectors and answers nearest-neighbor queries.
type Index interface {
	// Upsert writes chunks, replacing any rows with the same ID.
	Upsert(ctx context.Context, chunks []Chunk) error
	// Query returns up to limit chunks nearest to vector, most similar
	// first.
	Query(ctx context.Context, vector []float32, limit int) ([]Match, error)
	// Reset drops all stored chunks and prepares the index for vectors
	// of the given dimensionality.
	Reset(ctx context.Context, dimensions int) error
	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)
}
