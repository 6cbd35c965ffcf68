package crawler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeFetcher struct {
	mu       sync.Mutex
	outcomes map[string]FetchOutcome
	fatal    map[string]error
	calls    []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (FetchOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.fatal[url]; ok {
		return FetchOutcome{}, err
	}
	outcome, ok := f.outcomes[url]
	if !ok {
		return FetchOutcome{URL: url, Err: errors.New("not found")}, nil
	}
	return outcome, nil
}

type fakePageStore struct {
	mu    sync.Mutex
	pages map[string]Page
}

func newFakePageStore() *fakePageStore {
	return &fakePageStore{pages: make(map[string]Page)}
}

func (s *fakePageStore) UpsertPage(_ context.Context, page Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page.URL] = page
	return nil
}

func (s *fakePageStore) GetPage(_ context.Context, url string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[url]
	if !ok {
		return Page{}, errors.New("page not found")
	}
	return page, nil
}

func (s *fakePageStore) ListPages(_ context.Context) ([]Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Page, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (s *fakePageStore) Homepage(_ context.Context) (Page, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pages {
		if p.IsHomepage {
			return p, true, nil
		}
	}
	return Page{}, false, nil
}

func (s *fakePageStore) CountPages(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages), nil
}

func (s *fakePageStore) DeleteAllPages(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pages)
	s.pages = make(map[string]Page)
	return n, nil
}

func outcomeFor(url, title string, links ...string) FetchOutcome {
	return FetchOutcome{
		URL:   url,
		Title: title,
		Text:  "text of " + title,
		HTML:  "<html>" + title + "</html>",
		Links: links,
	}
}

func newTestController(fetcher Fetcher, pages PageStore) *Controller {
	return NewController(fetcher, pages, nil, &fakeClock{now: time.Unix(1700000000, 0)},
		ControllerConfig{}, zap.NewNop())
}

func TestController_CrawlsWholeSite(t *testing.T) {
	t.Parallel()

	const seed = "https://site.test/docs"
	fetcher := &fakeFetcher{outcomes: map[string]FetchOutcome{
		seed: outcomeFor(seed, "Home",
			"/docs/a", "/docs/b", "/other", "/docs/a.pdf"),
		"https://site.test/docs/a": outcomeFor("https://site.test/docs/a", "A",
			"/docs/sub/c", "/docs"),
		"https://site.test/docs/b": outcomeFor("https://site.test/docs/b", "B"),
		"https://site.test/docs/sub/c": outcomeFor("https://site.test/docs/sub/c", "C",
			"https://elsewhere.test/docs"),
	}}
	pages := newFakePageStore()

	stats, err := newTestController(fetcher, pages).Run(context.Background(), RunParams{
		TargetURL: seed,
	})
	require.NoError(t, err)
	require.Equal(t, 4, stats.PagesScraped)
	require.Equal(t, 0, stats.PagesFailed)

	stored, err := pages.ListPages(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 4)

	home, ok, err := pages.Homepage(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, seed, home.URL)

	// Out-of-scope links were never fetched.
	for _, call := range fetcher.calls {
		require.NotEqual(t, "https://site.test/other", call)
		require.NotContains(t, call, ".pdf")
		require.NotContains(t, call, "elsewhere.test")
	}
}

func TestController_PageFailureDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	const seed = "https://site.test/docs"
	fetcher := &fakeFetcher{outcomes: map[string]FetchOutcome{
		seed: outcomeFor(seed, "Home",
			"/docs/1", "/docs/2", "/docs/3", "/docs/4"),
		"https://site.test/docs/1": outcomeFor("https://site.test/docs/1", "One"),
		"https://site.test/docs/2": outcomeFor("https://site.test/docs/2", "Two"),
		"https://site.test/docs/3": {URL: "https://site.test/docs/3", Err: errors.New("render timeout")},
		"https://site.test/docs/4": outcomeFor("https://site.test/docs/4", "Four"),
	}}
	pages := newFakePageStore()

	stats, err := newTestController(fetcher, pages).Run(context.Background(), RunParams{
		TargetURL: seed,
	})
	require.NoError(t, err)
	require.Equal(t, 4, stats.PagesScraped)
	require.Equal(t, 1, stats.PagesFailed)

	// Every page around the failure is persisted; the broken one is not.
	for _, url := range []string{seed,
		"https://site.test/docs/1", "https://site.test/docs/2", "https://site.test/docs/4"} {
		_, err := pages.GetPage(context.Background(), url)
		require.NoError(t, err, "expected %s to be stored", url)
	}
	_, err = pages.GetPage(context.Background(), "https://site.test/docs/3")
	require.Error(t, err)
}

func TestController_FatalFetcherErrorAbortsRun(t *testing.T) {
	t.Parallel()

	const seed = "https://site.test/docs"
	fatal := errors.New("browser process exited")
	fetcher := &fakeFetcher{
		outcomes: map[string]FetchOutcome{},
		fatal:    map[string]error{seed: fatal},
	}

	_, err := newTestController(fetcher, newFakePageStore()).Run(context.Background(), RunParams{
		TargetURL: seed,
	})
	require.ErrorIs(t, err, fatal)
}

func TestController_SinglePageIgnoresLinks(t *testing.T) {
	t.Parallel()

	const seed = "https://site.test/docs"
	fetcher := &fakeFetcher{outcomes: map[string]FetchOutcome{
		seed: outcomeFor(seed, "Home", "/docs/a", "/docs/b"),
	}}
	pages := newFakePageStore()

	stats, err := newTestController(fetcher, pages).Run(context.Background(), RunParams{
		TargetURL:  seed,
		SinglePage: true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.PagesScraped)
	require.Equal(t, []string{seed}, fetcher.calls)
}

func TestController_MaxPagesStopsCrawl(t *testing.T) {
	t.Parallel()

	const seed = "https://site.test/docs"
	fetcher := &fakeFetcher{outcomes: map[string]FetchOutcome{
		seed: outcomeFor(seed, "Home", "/docs/a", "/docs/b", "/docs/c"),
		"https://site.test/docs/a": outcomeFor("https://site.test/docs/a", "A"),
		"https://site.test/docs/b": outcomeFor("https://site.test/docs/b", "B"),
		"https://site.test/docs/c": outcomeFor("https://site.test/docs/c", "C"),
	}}
	pages := newFakePageStore()

	stats, err := newTestController(fetcher, pages).Run(context.Background(), RunParams{
		TargetURL: seed,
		MaxPages:  2,
	})
	require.NoError(t, err)
	require.Equal(t, 2, stats.PagesScraped)

	n, err := pages.CountPages(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestController_CancelledContextAbortsRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestController(&fakeFetcher{}, newFakePageStore()).Run(ctx, RunParams{
		TargetURL: "https://site.test/docs",
	})
	require.ErrorIs(t, err, context.Canceled)
}
