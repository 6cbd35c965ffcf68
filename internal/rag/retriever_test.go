package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/echochat/echochat/internal/index"
	"github.com/echochat/echochat/internal/index/memory"
)

// unitEmbedder returns fixed vectors keyed by input text.
type unitEmbedder struct {
	vectors map[string][]float32
	fail    error
}

func (u *unitEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	if u.fail != nil {
		return nil, u.fail
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		vec, ok := u.vectors[in]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		out[i] = vec
	}
	return out, nil
}

func TestRetriever_RanksBySimilarity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := memory.New()
	require.NoError(t, idx.Reset(ctx, 3))
	require.NoError(t, idx.Upsert(ctx, []index.Chunk{
		{ID: "1", URL: "https://site.test/a", Title: "A", Text: "about apples", Vector: []float32{1, 0, 0}},
		{ID: "2", URL: "https://site.test/b", Title: "B", Text: "about bears", Vector: []float32{0, 1, 0}},
		{ID: "3", URL: "https://site.test/c", Title: "C", Text: "apples and bears", Vector: []float32{1, 1, 0}},
	}))

	embedder := &unitEmbedder{vectors: map[string][]float32{
		"tell me about apples": {1, 0, 0},
	}}
	r := NewRetriever(idx, embedder, nil)

	results := r.Retrieve(ctx, "tell me about apples", 2)
	require.Len(t, results, 2)
	require.Equal(t, "https://site.test/a", results[0].URL)
	require.Equal(t, "https://site.test/c", results[1].URL)
	require.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
}

func TestRetriever_EmptyIndexReturnsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := memory.New()
	require.NoError(t, idx.Reset(ctx, 3))
	r := NewRetriever(idx, &unitEmbedder{}, nil)

	require.Empty(t, r.Retrieve(ctx, "anything", 5))
}

func TestRetriever_FailuresYieldEmptyNotError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := memory.New()
	require.NoError(t, idx.Reset(ctx, 3))

	r := NewRetriever(idx, &unitEmbedder{fail: errors.New("backend down")}, nil)
	require.Empty(t, r.Retrieve(ctx, "anything", 5))
}

func TestRetriever_BlankQueryAndZeroK(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := memory.New()
	require.NoError(t, idx.Reset(ctx, 3))
	r := NewRetriever(idx, &unitEmbedder{}, nil)

	require.Empty(t, r.Retrieve(ctx, "", 5))
	require.Empty(t, r.Retrieve(ctx, "anything", 0))
}
