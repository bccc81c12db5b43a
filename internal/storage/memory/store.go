// Package memory provides an in-memory Store for tests and single-node
// runs without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seolens/siteaudit/internal/seo"
)

// Store keeps all records in process memory. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	crawls map[uuid.UUID]seo.Crawl
	pages  map[uuid.UUID]seo.PageRecord
	links  map[uuid.UUID][]seo.LinkRecord
	issues map[uuid.UUID][]seo.IssueRecord
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		crawls: make(map[uuid.UUID]seo.Crawl),
		pages:  make(map[uuid.UUID]seo.PageRecord),
		links:  make(map[uuid.UUID][]seo.LinkRecord),
		issues: make(map[uuid.UUID][]seo.IssueRecord),
	}
}

// CreateCrawl implements seo.Store.
func (s *Store) CreateCrawl(_ context.Context, crawl seo.Crawl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crawls[crawl.ID] = crawl
	return nil
}

// GetCrawl implements seo.Store.
func (s *Store) GetCrawl(_ context.Context, crawlID uuid.UUID) (seo.Crawl, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	crawl, ok := s.crawls[crawlID]
	if !ok {
		return seo.Crawl{}, seo.ErrNotFound
	}
	return crawl, nil
}

// SetCrawlStatus implements seo.Store.
func (s *Store) SetCrawlStatus(_ context.Context, crawlID uuid.UUID, status seo.CrawlStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	crawl, ok := s.crawls[crawlID]
	if !ok {
		return seo.ErrNotFound
	}
	crawl.Status = status
	s.crawls[crawlID] = crawl
	return nil
}

// SetCrawlTotals implements seo.Store.
func (s *Store) SetCrawlTotals(_ context.Context, crawlID uuid.UUID, startTime, endTime *time.Time, totals seo.CrawlTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	crawl, ok := s.crawls[crawlID]
	if !ok {
		return seo.ErrNotFound
	}
	crawl.StartTime = startTime
	crawl.EndTime = endTime
	crawl.Totals = totals
	s.crawls[crawlID] = crawl
	return nil
}

// CreatePage implements seo.Store.
func (s *Store) CreatePage(_ context.Context, page seo.PageRecord) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page.ID] = page
	return page.ID, nil
}

// CreateLinks implements seo.Store.
func (s *Store) CreateLinks(_ context.Context, pageID uuid.UUID, links []seo.LinkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[pageID] = append(s.links[pageID], links...)
	return nil
}

// CreateIssue implements seo.Store.
func (s *Store) CreateIssue(_ context.Context, issue seo.IssueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[issue.CrawlID] = append(s.issues[issue.CrawlID], issue)
	return nil
}

// Pages returns all pages stored for a crawl. Order is unspecified.
func (s *Store) Pages(crawlID uuid.UUID) []seo.PageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []seo.PageRecord
	for _, page := range s.pages {
		if page.CrawlID == crawlID {
			out = append(out, page)
		}
	}
	return out
}

// Links returns the link records captured for a page.
func (s *Store) Links(pageID uuid.UUID) []seo.LinkRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]seo.LinkRecord(nil), s.links[pageID]...)
}

// Issues returns the issues recorded for a crawl.
func (s *Store) Issues(crawlID uuid.UUID) []seo.IssueRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]seo.IssueRecord(nil), s.issues[crawlID]...)
}
