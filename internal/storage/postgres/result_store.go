package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

const defaultResultTable = "crawl_pages"

// ResultStore writes one row per crawled page.
type ResultStore struct {
	pool  execCloser
	table string
}

var _ crawler.ResultStore = (*ResultStore)(nil)

// NewResultStore wraps an existing pool. An empty table selects crawl_pages.
func NewResultStore(pool execCloser, table string) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, defaultResultTable)
	if err != nil {
		return nil, err
	}
	return &ResultStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreResult inserts a page row. Re-crawls of the same id are ignored.
func (s *ResultStore) StoreResult(ctx context.Context, record crawler.PageRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("result store is not configured")
	}
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	links := record.Links
	if links == nil {
		links = []string{}
	}
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	results := record.Results
	if results == nil {
		results = map[string]any{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal module results: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	run_id,
	url,
	depth,
	status,
	links,
	results,
	crawled_at,
	duration_ms
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
) ON CONFLICT (id) DO NOTHING`, s.table)

	args := []any{
		record.ID,
		record.RunID,
		record.URL,
		record.Depth,
		string(record.Status),
		linksJSON,
		resultsJSON,
		record.CrawledAt,
		record.DurationMs,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert page result: %w", err)
	}
	return nil
}
