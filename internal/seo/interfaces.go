package seo

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists crawl, page, link, and issue records. One page's writes are
// grouped logically; no transaction boundary is assumed beyond that.
type Store interface {
	CreateCrawl(ctx context.Context, crawl Crawl) error
	GetCrawl(ctx context.Context, crawlID uuid.UUID) (Crawl, error)
	SetCrawlStatus(ctx context.Context, crawlID uuid.UUID, status CrawlStatus) error
	SetCrawlTotals(ctx context.Context, crawlID uuid.UUID, startTime, endTime *time.Time, totals CrawlTotals) error
	CreatePage(ctx context.Context, page PageRecord) (uuid.UUID, error)
	CreateLinks(ctx context.Context, pageID uuid.UUID, links []LinkRecord) error
	CreateIssue(ctx context.Context, issue IssueRecord) error
}

// Notifier delivers side-channel notifications. Calls are fire-and-forget
// from the crawl loop's perspective; delivery semantics are the
// implementation's problem.
type Notifier interface {
	CriticalIssueFound(ctx context.Context, crawlID uuid.UUID, pageURL, issueType, description string) error
	CrawlCompleted(ctx context.Context, crawlID uuid.UUID, totals CrawlTotals) error
}

// Archiver writes raw page bodies and returns a URI, or "" when archiving is
// disabled.
type Archiver interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher computes digests for content deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl and page IDs.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
