package rag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunker_TwelveWordsWindowFiveOverlapTwo(t *testing.T) {
	t.Parallel()

	words := make([]string, 12)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	c, err := NewChunker(5, 2)
	require.NoError(t, err)

	chunks := c.Split(strings.Join(words, " "))
	require.Equal(t, []string{
		"w0 w1 w2 w3 w4",
		"w3 w4 w5 w6 w7",
		"w6 w7 w8 w9 w10",
		"w9 w10 w11",
	}, chunks)
}

func TestChunker_TrailingWindowWhenBoundaryLandsOnEnd(t *testing.T) {
	t.Parallel()

	// A window starts at every multiple of Size-Overlap below the word
	// count, so texts whose last full window ends exactly at the text
	// still get the short trailing windows after it.
	c, err := NewChunker(5, 2)
	require.NoError(t, err)

	cases := []struct {
		words int
		want  int
	}{
		{words: 5, want: 2},
		{words: 11, want: 4},
		{words: 13, want: 5},
	}
	for _, tc := range cases {
		words := make([]string, tc.words)
		for i := range words {
			words[i] = fmt.Sprintf("w%d", i)
		}
		chunks := c.Split(strings.Join(words, " "))
		require.Len(t, chunks, tc.want, "%d words", tc.words)
	}

	// 5 words, step 3: windows start at 0 and 3.
	chunks := c.Split("w0 w1 w2 w3 w4")
	require.Equal(t, []string{"w0 w1 w2 w3 w4", "w3 w4"}, chunks)
}

func TestChunker_OverlapLaw(t *testing.T) {
	t.Parallel()

	// Consecutive windows share exactly Overlap words.
	words := make([]string, 40)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	c, err := NewChunker(10, 3)
	require.NoError(t, err)

	chunks := c.Split(strings.Join(words, " "))
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1])
		cur := strings.Fields(chunks[i])
		require.Equal(t, prev[len(prev)-3:], cur[:3],
			"windows %d and %d must share the overlap", i-1, i)
	}
}

func TestChunker_EmptyText(t *testing.T) {
	t.Parallel()

	c, err := NewChunker(5, 2)
	require.NoError(t, err)
	require.Nil(t, c.Split(""))
	require.Nil(t, c.Split("   \n\t  "))
}

func TestChunker_ShortText(t *testing.T) {
	t.Parallel()

	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	require.Equal(t, []string{"only three words"}, c.Split("only three words"))
}

func TestNewChunker_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewChunker(0, 0)
	require.Error(t, err)
	_, err = NewChunker(5, 5)
	require.Error(t, err)
	_, err = NewChunker(5, -1)
	require.Error(t, err)
}

func TestChunkID_Deterministic(t *testing.T) {
	t.Parallel()

	a := ChunkID("https://site.test/docs", 0)
	b := ChunkID("https://site.test/docs", 0)
	require.Equal(t, a, b)
	require.Len(t, a, 32)

	require.NotEqual(t, a, ChunkID("https://site.test/docs", 1))
	require.NotEqual(t, a, ChunkID("https://site.test/other", 0))
}
