// Package memory implements the vector index with a brute-force in-memory
// scan. It backs tests and single-node development runs.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/echochat/echochat/internal/index"
)

// Index is a mutex-guarded map of chunks scanned linearly per query.
type Index struct {
	mu         sync.RWMutex
	chunks     map[string]index.Chunk
	dimensions int
}

// New returns an empty index. Reset sets the dimensionality; before the
// first Reset, Upsert accepts any vector length.
func New() *Index {
	return &Index{chunks: make(map[string]index.Chunk)}
}

func (i *Index) Upsert(_ context.Context, chunks []index.Chunk) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk for %s has no id", c.URL)
		}
		if i.dimensions > 0 && len(c.Vector) != i.dimensions {
			return fmt.Errorf("chunk %s has %d dimensions, index has %d",
				c.ID, len(c.Vector), i.dimensions)
		}
		i.chunks[c.ID] = c
	}
	return nil
}

func (i *Index) Query(_ context.Context, vector []float32, limit int) ([]index.Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	matches := make([]index.Match, 0, len(i.chunks))
	for _, c := range i.chunks {
		sim, ok := cosineSimilarity(vector, c.Vector)
		if !ok {
			continue
		}
		matches = append(matches, index.Match{Chunk: c, Similarity: sim})
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Similarity > matches[b].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (i *Index) Reset(_ context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.chunks = make(map[string]index.Chunk)
	i.dimensions = dimensions
	return nil
}

func (i *Index) Count(_ context.Context) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.chunks), nil
}

// cosineSimilarity reports ok=false for mismatched lengths or zero-norm
// vectors, which simply drop out of the result set.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
