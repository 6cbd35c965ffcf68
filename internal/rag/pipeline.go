package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/echochat/echochat/internal/crawler"
	"github.com/echochat/echochat/internal/embedding"
	"github.com/echochat/echochat/internal/index"
	"github.com/echochat/echochat/internal/metrics"
)

// PipelineConfig tunes the indexing pipeline.
type PipelineConfig struct {
	// EmbedBatchSize caps how many chunks go into one embedding call.
	EmbedBatchSize int
	// StrictReset makes a failed index reset abort the reindex instead
	// of continuing best-effort.
	StrictReset bool
}

// Pipeline chunks page text, embeds it, and writes it into the vector
// index.
type Pipeline struct {
	idx      index.Index
	embedder embedding.Client
	pages    crawler.PageStore
	chunker  Chunker
	cfg      PipelineConfig
	logger   *zap.Logger
}

// NewPipeline wires the pipeline. The index handle is injected; the
// pipeline never owns or rebuilds the connection itself.
func NewPipeline(
	idx index.Index,
	embedder embedding.Client,
	pages crawler.PageStore,
	chunker Chunker,
	cfg PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	return &Pipeline{
		idx:      idx,
		embedder: embedder,
		pages:    pages,
		chunker:  chunker,
		cfg:      cfg,
		logger:   logger,
	}
}

// IndexPage chunks, embeds, and upserts one page. It returns the number
// of chunks written; pages with no extractable text index zero chunks.
func (p *Pipeline) IndexPage(ctx context.Context, page crawler.Page) (int, error) {
	texts := p.chunker.Split(page.Text)
	if len(texts) == 0 {
		p.logger.Warn("page has no indexable text", zap.String("url", page.URL))
		return 0, nil
	}

	indexed := 0
	for start := 0; start < len(texts); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		vectors, err := p.embedder.Embed(ctx, batch)
		if err != nil {
			return indexed, fmt.Errorf("embed chunks for %s: %w", page.URL, err)
		}
		chunks := make([]index.Chunk, len(batch))
		for i, text := range batch {
			pos := start + i
			chunks[i] = index.Chunk{
				ID:          ChunkID(page.URL, pos),
				URL:         page.URL,
				Title:       page.Title,
				Text:        text,
				ChunkIndex:  pos,
				TotalChunks: len(texts),
				IsHomepage:  page.IsHomepage,
				Vector:      vectors[i],
			}
		}
		if err := p.idx.Upsert(ctx, chunks); err != nil {
			return indexed, fmt.Errorf("upsert chunks for %s: %w", page.URL, err)
		}
		indexed += len(chunks)
	}
	metrics.ChunksIndexed.Add(float64(indexed))
	return indexed, nil
}

// ReindexAll rebuilds the index from every persisted page: probe the
// embedding dimensionality, drop and recreate the index, then index each
// page. A reset failure is logged and tolerated unless StrictReset is on.
func (p *Pipeline) ReindexAll(ctx context.Context) (int, error) {
	pages, err := p.pages.ListPages(ctx)
	if err != nil {
		metrics.IndexRebuilds.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("list pages: %w", err)
	}

	dims, err := embedding.ProbeDimensions(ctx, p.embedder)
	if err != nil {
		metrics.IndexRebuilds.WithLabelValues("error").Inc()
		return 0, err
	}
	if err := p.idx.Reset(ctx, dims); err != nil {
		if p.cfg.StrictReset {
			metrics.IndexRebuilds.WithLabelValues("error").Inc()
			return 0, fmt.Errorf("reset index: %w", err)
		}
		p.logger.Warn("index reset failed, continuing best-effort", zap.Error(err))
	}

	total := 0
	for _, page := range pages {
		n, err := p.IndexPage(ctx, page)
		total += n
		if err != nil {
			metrics.IndexRebuilds.WithLabelValues("error").Inc()
			return total, err
		}
	}
	metrics.IndexRebuilds.WithLabelValues("ok").Inc()
	p.logger.Info("reindex complete",
		zap.Int("pages", len(pages)),
		zap.Int("chunks", total),
		zap.Int("dimensions", dims),
	)
	return total, nil
}
