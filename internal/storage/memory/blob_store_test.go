package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStore_PutAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewBlobStore()

	uri, err := s.PutObject(ctx, "archive/page.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "memory://archive/page.html", uri)

	data, ok := s.GetObject(ctx, "archive/page.html")
	require.True(t, ok)
	require.Equal(t, []byte("<html></html>"), data)
	require.Equal(t, 1, s.Len())

	_, ok = s.GetObject(ctx, "missing")
	require.False(t, ok)
}

func TestBlobStore_EmptyPathRejected(t *testing.T) {
	t.Parallel()
	_, err := NewBlobStore().PutObject(context.Background(), "", "text/html", nil)
	require.Error(t, err)
}

func TestBlobStore_CopiesData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewBlobStore()

	payload := []byte("original")
	_, err := s.PutObject(ctx, "p", "text/plain", payload)
	require.NoError(t, err)
	payload[0] = 'X'

	data, ok := s.GetObject(ctx, "p")
	require.True(t, ok)
	require.Equal(t, []byte("original"), data)
}
