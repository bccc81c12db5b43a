// Package postgres provides Postgres-backed persistence for crawl results.
//
// Expected schema:
//
//	CREATE TABLE crawls (
//	    id UUID PRIMARY KEY,
//	    domain TEXT NOT NULL,
//	    max_pages INT NOT NULL,
//	    sitemap_url TEXT NOT NULL DEFAULT '',
//	    status TEXT NOT NULL,
//	    start_time TIMESTAMPTZ,
//	    end_time TIMESTAMPTZ,
//	    total_pages INT NOT NULL DEFAULT 0,
//	    issues_found INT NOT NULL DEFAULT 0,
//	    error_count INT NOT NULL DEFAULT 0
//	);
//
//	CREATE TABLE pages (
//	    id UUID PRIMARY KEY,
//	    crawl_id UUID NOT NULL REFERENCES crawls(id),
//	    url TEXT NOT NULL,
//	    status_code INT NOT NULL,
//	    title TEXT NOT NULL DEFAULT '',
//	    description TEXT NOT NULL DEFAULT '',
//	    h1 TEXT NOT NULL DEFAULT '',
//	    load_time_ms BIGINT NOT NULL,
//	    size_bytes INT NOT NULL,
//	    content_hash TEXT NOT NULL,
//	    archive_uri TEXT NOT NULL DEFAULT '',
//	    fetched_at TIMESTAMPTZ NOT NULL,
//	    performance JSONB
//	);
//
//	CREATE TABLE links (
//	    page_id UUID NOT NULL REFERENCES pages(id),
//	    target_url TEXT NOT NULL,
//	    link_type TEXT NOT NULL,
//	    anchor_text TEXT NOT NULL DEFAULT ''
//	);
//
//	CREATE TABLE issues (
//	    crawl_id UUID NOT NULL REFERENCES crawls(id),
//	    page_id UUID REFERENCES pages(id),
//	    issue_type TEXT NOT NULL,
//	    severity TEXT NOT NULL,
//	    category TEXT NOT NULL,
//	    description TEXT NOT NULL,
//	    fix_template TEXT NOT NULL DEFAULT ''
//	);
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seolens/siteaudit/internal/seo"
)

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store implements seo.Store on Postgres.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

// NewStore connects a pool and pings it.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// NewStoreWithDB wraps an existing connection, used by tests.
func NewStoreWithDB(db DB) *Store {
	return &Store{db: db}
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateCrawl implements seo.Store.
func (s *Store) CreateCrawl(ctx context.Context, crawl seo.Crawl) error {
	query := `
		INSERT INTO crawls (id, domain, max_pages, sitemap_url, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.Exec(ctx, query, crawl.ID, crawl.Domain, crawl.MaxPages, crawl.SitemapURL, crawl.Status)
	if err != nil {
		return fmt.Errorf("insert crawl: %w", err)
	}
	return nil
}

// GetCrawl implements seo.Store.
func (s *Store) GetCrawl(ctx context.Context, crawlID uuid.UUID) (seo.Crawl, error) {
	query := `
		SELECT id, domain, max_pages, sitemap_url, status, start_time, end_time,
		       total_pages, issues_found, error_count
		FROM crawls
		WHERE id = $1
	`
	var crawl seo.Crawl
	err := s.db.QueryRow(ctx, query, crawlID).Scan(
		&crawl.ID, &crawl.Domain, &crawl.MaxPages, &crawl.SitemapURL, &crawl.Status,
		&crawl.StartTime, &crawl.EndTime,
		&crawl.Totals.TotalPages, &crawl.Totals.IssuesFound, &crawl.Totals.ErrorCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return seo.Crawl{}, seo.ErrNotFound
	}
	if err != nil {
		return seo.Crawl{}, fmt.Errorf("select crawl: %w", err)
	}
	return crawl, nil
}

// SetCrawlStatus implements seo.Store.
func (s *Store) SetCrawlStatus(ctx context.Context, crawlID uuid.UUID, status seo.CrawlStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE crawls SET status = $1 WHERE id = $2`, status, crawlID)
	if err != nil {
		return fmt.Errorf("update crawl status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return seo.ErrNotFound
	}
	return nil
}

// SetCrawlTotals implements seo.Store.
func (s *Store) SetCrawlTotals(ctx context.Context, crawlID uuid.UUID, startTime, endTime *time.Time, totals seo.CrawlTotals) error {
	query := `
		UPDATE crawls
		SET start_time = $1, end_time = $2, total_pages = $3, issues_found = $4, error_count = $5
		WHERE id = $6
	`
	tag, err := s.db.Exec(ctx, query, startTime, endTime, totals.TotalPages, totals.IssuesFound, totals.ErrorCount, crawlID)
	if err != nil {
		return fmt.Errorf("update crawl totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return seo.ErrNotFound
	}
	return nil
}

// CreatePage implements seo.Store.
func (s *Store) CreatePage(ctx context.Context, page seo.PageRecord) (uuid.UUID, error) {
	var performance []byte
	if page.Performance != nil {
		encoded, err := json.Marshal(page.Performance)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal performance: %w", err)
		}
		performance = encoded
	}

	query := `
		INSERT INTO pages (id, crawl_id, url, status_code, title, description, h1,
		                   load_time_ms, size_bytes, content_hash, archive_uri, fetched_at, performance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	var pageID uuid.UUID
	err := s.db.QueryRow(ctx, query,
		page.ID, page.CrawlID, page.URL, page.StatusCode,
		page.Title, page.Description, page.H1,
		page.LoadTimeMs, page.SizeBytes, page.ContentHash, page.ArchiveURI, page.FetchedAt,
		performance,
	).Scan(&pageID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert page: %w", err)
	}
	return pageID, nil
}

// CreateLinks implements seo.Store.
func (s *Store) CreateLinks(ctx context.Context, pageID uuid.UUID, links []seo.LinkRecord) error {
	query := `
		INSERT INTO links (page_id, target_url, link_type, anchor_text)
		VALUES ($1, $2, $3, $4)
	`
	for _, link := range links {
		if _, err := s.db.Exec(ctx, query, pageID, link.TargetURL, link.Type, link.AnchorText); err != nil {
			return fmt.Errorf("insert link %s: %w", link.TargetURL, err)
		}
	}
	return nil
}

// CreateIssue implements seo.Store.
func (s *Store) CreateIssue(ctx context.Context, issue seo.IssueRecord) error {
	query := `
		INSERT INTO issues (crawl_id, page_id, issue_type, severity, category, description, fix_template)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Exec(ctx, query,
		issue.CrawlID, issue.PageID, issue.Type, issue.Severity, issue.Category,
		issue.Description, issue.FixTemplate,
	)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}
