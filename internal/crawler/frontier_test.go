package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrontier_SeedAndDedupe(t *testing.T) {
	t.Parallel()

	f := NewFrontier("https://site.test/docs")
	require.Equal(t, 1, f.Len())

	require.False(t, f.Add("https://site.test/docs"), "seed must not be re-admitted")
	require.True(t, f.Add("https://site.test/docs/a"))
	require.False(t, f.Add("https://site.test/docs/a"), "pending URL must not be re-admitted")
	require.False(t, f.Add(""))
	require.Equal(t, 2, f.Len())
}

func TestFrontier_VisitedNeverReadmitted(t *testing.T) {
	t.Parallel()

	f := NewFrontier("https://site.test/docs")
	url, ok := f.Pop()
	require.True(t, ok)
	require.True(t, f.MarkVisited(url))
	require.False(t, f.MarkVisited(url))

	require.False(t, f.Add(url), "visited URL must not re-enter the frontier")
	require.Equal(t, 0, f.Len())
	require.Equal(t, 1, f.VisitedCount())
}

func TestFrontier_DrainsToEmpty(t *testing.T) {
	t.Parallel()

	f := NewFrontier("a")
	f.Add("b")
	f.Add("c")

	seen := map[string]bool{}
	for {
		url, ok := f.Pop()
		if !ok {
			break
		}
		require.False(t, seen[url], "Pop returned %q twice", url)
		seen[url] = true
		f.MarkVisited(url)
	}
	require.Len(t, seen, 3)
	require.Equal(t, 3, f.VisitedCount())

	_, ok := f.Pop()
	require.False(t, ok)
}
