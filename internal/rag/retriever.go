package rag

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/echochat/echochat/internal/embedding"
	"github.com/echochat/echochat/internal/index"
	"github.com/echochat/echochat/internal/metrics"
)

// Result is one retrieved chunk, most similar first.
type Result struct {
	URL        string
	Title      string
	Text       string
	ChunkIndex int
	Similarity float64
}

// Retriever answers similarity queries against the index. It degrades to
// empty results on any failure so a broken index or embedding backend
// never takes the chat endpoint down.
type Retriever struct {
	idx      index.Index
	embedder embedding.Client
	logger   *zap.Logger
}

// NewRetriever wires a retriever around an injected index handle.
func NewRetriever(idx index.Index, embedder embedding.Client, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{idx: idx, embedder: embedder, logger: logger}
}

// Retrieve returns up to k chunks relevant to query. It never returns an
// error: failures are logged and yield an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) []Result {
	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	}()

	if query == "" || k <= 0 {
		return nil
	}
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		r.logger.Warn("query embedding failed", zap.Error(err))
		return nil
	}
	matches, err := r.idx.Query(ctx, vectors[0], k)
	if err != nil {
		r.logger.Warn("index query failed", zap.Error(err))
		return nil
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			URL:        m.URL,
			Title:      m.Title,
			Text:       m.Text,
			ChunkIndex: m.ChunkIndex,
			Similarity: m.Similarity,
		}
	}
	return results
}
