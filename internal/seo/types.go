// Package seo defines core types shared across the audit crawler subsystems.
package seo

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// CrawlStatus represents the lifecycle state of a crawl job.
type CrawlStatus string

// Crawl status values persisted by the store. A crawl is terminal once it
// reaches completed or failed.
const (
	CrawlStatusPending   CrawlStatus = "pending"
	CrawlStatusRunning   CrawlStatus = "running"
	CrawlStatusCompleted CrawlStatus = "completed"
	CrawlStatusFailed    CrawlStatus = "failed"
)

// Terminal reports whether the status is final.
func (s CrawlStatus) Terminal() bool {
	return s == CrawlStatusCompleted || s == CrawlStatusFailed
}

// Crawl represents one traversal run over a target domain.
type Crawl struct {
	ID         uuid.UUID   `json:"id"`
	Domain     string      `json:"domain"`
	MaxPages   int         `json:"max_pages"`
	SitemapURL string      `json:"sitemap_url,omitempty"`
	Status     CrawlStatus `json:"status"`
	StartTime  *time.Time  `json:"start_time,omitempty"`
	EndTime    *time.Time  `json:"end_time,omitempty"`
	Totals     CrawlTotals `json:"totals"`
}

// CrawlTotals tracks the final counters for a crawl.
type CrawlTotals struct {
	TotalPages  int `json:"total_pages"`
	IssuesFound int `json:"issues_found"`
	ErrorCount  int `json:"error_count"`
}

// PageRecord is persisted once per unique normalized URL per crawl. It is
// immutable after creation except for the performance snapshot.
type PageRecord struct {
	ID          uuid.UUID  `json:"id"`
	CrawlID     uuid.UUID  `json:"crawl_id"`
	URL         string     `json:"url"`
	StatusCode  int        `json:"status_code"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	H1          string     `json:"h1,omitempty"`
	LoadTimeMs  int64      `json:"load_time_ms"`
	SizeBytes   int        `json:"size_bytes"`
	ContentHash string     `json:"content_hash"`
	ArchiveURI  string     `json:"archive_uri,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
	Performance *WebVitals `json:"performance,omitempty"`
}

// LinkType classifies a discovered link relative to the crawl domain.
type LinkType string

// Link classifications.
const (
	LinkInternal LinkType = "internal"
	LinkExternal LinkType = "external"
)

// LinkRecord is one outbound link discovered on a page. Created in bulk
// during parsing; never mutated.
type LinkRecord struct {
	PageID     uuid.UUID `json:"page_id"`
	TargetURL  string    `json:"target_url"`
	Type       LinkType  `json:"type"`
	AnchorText string    `json:"anchor_text,omitempty"`
}

// Severity grades an audit finding.
type Severity string

// Supported severities in decreasing order of urgency.
const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Category buckets an audit finding for reporting.
type Category string

// Supported issue categories.
const (
	CategoryTechnicalSEO  Category = "technical_seo"
	CategoryContent       Category = "content"
	CategoryAccessibility Category = "accessibility"
)

// Issue is a single audit finding produced by a rule, before persistence.
type Issue struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	FixTemplate string   `json:"fix_template,omitempty"`
}

// IssueRecord attaches a finding to a crawl and (usually) a page. PageID is
// nil for crawl-level findings. Immutable; triage state lives elsewhere.
type IssueRecord struct {
	CrawlID     uuid.UUID  `json:"crawl_id"`
	PageID      *uuid.UUID `json:"page_id,omitempty"`
	Type        string     `json:"type"`
	Severity    Severity   `json:"severity"`
	Category    Category   `json:"category"`
	Description string     `json:"description"`
	FixTemplate string     `json:"fix_template,omitempty"`
}

// VitalsSourceUnavailable is the Source of a WebVitals snapshot nobody
// could measure.
const VitalsSourceUnavailable = "unavailable"

// WebVitals carries Core Web Vitals metrics for a page. Nil fields mean the
// metric was not measured; Source records which provider produced the data
// ("unavailable" when every provider came up empty).
type WebVitals struct {
	LCPMs  *int64   `json:"lcp_ms"`
	FCPMs  *int64   `json:"fcp_ms"`
	CLS    *float64 `json:"cls"`
	Source string   `json:"source"`
}

// Empty reports whether no metric was measured.
func (v WebVitals) Empty() bool {
	return v.LCPMs == nil && v.FCPMs == nil && v.CLS == nil
}

// FetchResponse is the result of fetching a URL. A nil response at the call
// site means the page was unreachable after retries.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	RedirectHops int
	Duration     time.Duration
	UsedHeadless bool
}

// LinkCheck is the memoized outcome of verifying one internal link target.
// StatusCode is nil when the target was unreachable.
type LinkCheck struct {
	URL          string `json:"url"`
	StatusCode   *int   `json:"status_code"`
	RedirectHops int    `json:"redirect_hops"`
}

// Broken reports whether the target should be flagged as invalid.
func (c LinkCheck) Broken() bool {
	return c.StatusCode == nil || *c.StatusCode >= 400
}
