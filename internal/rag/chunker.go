// Package rag holds the chunking and indexing pipeline plus the
// retriever that serves chat queries from the vector index.
package rag

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunker splits page text into overlapping word windows.
type Chunker struct {
	// Size is the window length in words.
	Size int
	// Overlap is how many words consecutive windows share. Windows
	// therefore advance by Size-Overlap.
	Overlap int
}

// NewChunker validates the window parameters.
func NewChunker(size, overlap int) (Chunker, error) {
	if size <= 0 {
		return Chunker{}, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return Chunker{}, fmt.Errorf("overlap must be in [0, size), got %d", overlap)
	}
	return Chunker{Size: size, Overlap: overlap}, nil
}

// Split returns the overlapping word windows of text, in order. A window
// starts at every multiple of Size-Overlap below the word count, so a
// trailing window is emitted even when the previous one already reached
// the end. Empty or whitespace-only text yields nil.
func (c Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.Size - c.Overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + c.Size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

// ChunkID derives the deterministic id for the i-th chunk of url, so a
// full reindex of unchanged content produces identical ids.
func ChunkID(url string, i int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", url, i))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
