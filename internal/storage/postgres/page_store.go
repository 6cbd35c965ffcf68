package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/echochat/echochat/internal/crawler"
)

// PageStore persists page snapshots in the pages table, keyed by URL.
type PageStore struct {
	pool dbPool
}

// NewPageStore wraps an existing pool.
func NewPageStore(pool dbPool) *PageStore {
	return &PageStore{pool: pool}
}

// EnsureSchema creates the pages table when it does not exist yet.
func (s *PageStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pages (
			url TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			page_text TEXT NOT NULL DEFAULT '',
			html TEXT NOT NULL DEFAULT '',
			is_homepage BOOLEAN NOT NULL DEFAULT FALSE,
			scraped_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create pages table: %w", err)
	}
	return nil
}

// UpsertPage inserts or updates the row for page.URL. The original
// scraped_at survives re-crawls; updated_at always moves forward.
func (s *PageStore) UpsertPage(ctx context.Context, page crawler.Page) error {
	if page.URL == "" {
		return fmt.Errorf("page has no url")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pages (url, title, page_text, html, is_homepage, scraped_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (url) DO UPDATE
		SET title = EXCLUDED.title,
			page_text = EXCLUDED.page_text,
			html = EXCLUDED.html,
			is_homepage = EXCLUDED.is_homepage,
			updated_at = EXCLUDED.updated_at;
	`, page.URL, page.Title, page.Text, page.HTML, page.IsHomepage,
		page.ScrapedAt, page.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert page: %w", err)
	}
	return nil
}

const pageColumns = `url, title, page_text, html, is_homepage, scraped_at, updated_at`

func scanPage(row pgx.Row) (crawler.Page, error) {
	var page crawler.Page
	err := row.Scan(&page.URL, &page.Title, &page.Text, &page.HTML,
		&page.IsHomepage, &page.ScrapedAt, &page.UpdatedAt)
	return page, err
}

func (s *PageStore) GetPage(ctx context.Context, url string) (crawler.Page, error) {
	page, err := scanPage(s.pool.QueryRow(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE url = $1;`, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Page{}, fmt.Errorf("page %s not found", url)
	}
	if err != nil {
		return crawler.Page{}, fmt.Errorf("failed to get page: %w", err)
	}
	return page, nil
}

func (s *PageStore) ListPages(ctx context.Context) ([]crawler.Page, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pageColumns+` FROM pages ORDER BY url;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []crawler.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read page rows: %w", err)
	}
	return pages, nil
}

func (s *PageStore) Homepage(ctx context.Context) (crawler.Page, bool, error) {
	page, err := scanPage(s.pool.QueryRow(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE is_homepage LIMIT 1;`))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Page{}, false, nil
	}
	if err != nil {
		return crawler.Page{}, false, fmt.Errorf("failed to get homepage: %w", err)
	}
	return page, true, nil
}

func (s *PageStore) CountPages(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pages;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return n, nil
}

func (s *PageStore) DeleteAllPages(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pages;`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pages: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
