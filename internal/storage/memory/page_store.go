package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/echochat/echochat/internal/crawler"
)

// PageStore keeps page snapshots keyed by canonical URL.
type PageStore struct {
	mu    sync.RWMutex
	pages map[string]crawler.Page
}

// NewPageStore creates an empty page store.
func NewPageStore() *PageStore {
	return &PageStore{pages: make(map[string]crawler.Page)}
}

func (s *PageStore) UpsertPage(_ context.Context, page crawler.Page) error {
	if page.URL == "" {
		return fmt.Errorf("page has no url")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.pages[page.URL]; ok {
		// Preserve the original scrape time on re-crawl.
		page.ScrapedAt = existing.ScrapedAt
	}
	s.pages[page.URL] = page
	return nil
}

func (s *PageStore) GetPage(_ context.Context, url string) (crawler.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[url]
	if !ok {
		return crawler.Page{}, fmt.Errorf("page %s not found", url)
	}
	return page, nil
}

func (s *PageStore) ListPages(_ context.Context) ([]crawler.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := make([]crawler.Page, 0, len(s.pages))
	for _, page := range s.pages {
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })
	return pages, nil
}

func (s *PageStore) Homepage(_ context.Context) (crawler.Page, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, page := range s.pages {
		if page.IsHomepage {
			return page, true, nil
		}
	}
	return crawler.Page{}, false, nil
}

func (s *PageStore) CountPages(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages), nil
}

func (s *PageStore) DeleteAllPages(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pages)
	s.pages = make(map[string]crawler.Page)
	return n, nil
}
