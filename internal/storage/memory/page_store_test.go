package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/echochat/echochat/internal/crawler"
)

func page(url string, homepage bool, at time.Time) crawler.Page {
	return crawler.Page{
		URL:        url,
		Title:      "T " + url,
		Text:       "text",
		HTML:       "<html></html>",
		IsHomepage: homepage,
		ScrapedAt:  at,
		UpdatedAt:  at,
	}
}

func TestPageStore_UpsertKeepsFirstScrapeTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPageStore()

	first := time.Unix(1700000000, 0)
	second := first.Add(time.Hour)

	require.NoError(t, s.UpsertPage(ctx, page("https://site.test/a", false, first)))
	require.NoError(t, s.UpsertPage(ctx, page("https://site.test/a", false, second)))

	got, err := s.GetPage(ctx, "https://site.test/a")
	require.NoError(t, err)
	require.Equal(t, first, got.ScrapedAt)
	require.Equal(t, second, got.UpdatedAt)

	n, err := s.CountPages(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPageStore_Homepage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPageStore()
	now := time.Now()

	_, ok, err := s.Homepage(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.UpsertPage(ctx, page("https://site.test/a", false, now)))
	require.NoError(t, s.UpsertPage(ctx, page("https://site.test/", true, now)))

	home, ok, err := s.Homepage(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://site.test/", home.URL)
}

func TestPageStore_DeleteAllPages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPageStore()
	now := time.Now()

	require.NoError(t, s.UpsertPage(ctx, page("https://site.test/a", false, now)))
	require.NoError(t, s.UpsertPage(ctx, page("https://site.test/b", false, now)))

	deleted, err := s.DeleteAllPages(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	pages, err := s.ListPages(ctx)
	require.NoError(t, err)
	require.Empty(t, pages)
}

func TestPageStore_RejectsEmptyURL(t *testing.T) {
	t.Parallel()
	require.Error(t, NewPageStore().UpsertPage(context.Background(), crawler.Page{}))
}
