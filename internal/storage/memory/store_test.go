package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolens/siteaudit/internal/seo"
)

func TestCrawlLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	crawlID := uuid.New()

	require.NoError(t, store.CreateCrawl(ctx, seo.Crawl{
		ID:       crawlID,
		Domain:   "example.com",
		MaxPages: 50,
		Status:   seo.CrawlStatusPending,
	}))

	crawl, err := store.GetCrawl(ctx, crawlID)
	require.NoError(t, err)
	assert.Equal(t, "example.com", crawl.Domain)
	assert.Equal(t, seo.CrawlStatusPending, crawl.Status)

	require.NoError(t, store.SetCrawlStatus(ctx, crawlID, seo.CrawlStatusRunning))

	start := time.Now().Add(-time.Minute)
	end := time.Now()
	totals := seo.CrawlTotals{TotalPages: 7, IssuesFound: 3, ErrorCount: 1}
	require.NoError(t, store.SetCrawlTotals(ctx, crawlID, &start, &end, totals))
	require.NoError(t, store.SetCrawlStatus(ctx, crawlID, seo.CrawlStatusCompleted))

	crawl, err = store.GetCrawl(ctx, crawlID)
	require.NoError(t, err)
	assert.Equal(t, seo.CrawlStatusCompleted, crawl.Status)
	assert.Equal(t, totals, crawl.Totals)
	require.NotNil(t, crawl.StartTime)
	require.NotNil(t, crawl.EndTime)
	assert.True(t, crawl.EndTime.After(*crawl.StartTime))
}

func TestMissingCrawlReturnsNotFound(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	unknown := uuid.New()

	_, err := store.GetCrawl(ctx, unknown)
	assert.ErrorIs(t, err, seo.ErrNotFound)

	assert.ErrorIs(t, store.SetCrawlStatus(ctx, unknown, seo.CrawlStatusRunning), seo.ErrNotFound)
	assert.ErrorIs(t, store.SetCrawlTotals(ctx, unknown, nil, nil, seo.CrawlTotals{}), seo.ErrNotFound)
}

func TestPageLinksAndIssues(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	crawlID := uuid.New()
	pageID := uuid.New()

	gotID, err := store.CreatePage(ctx, seo.PageRecord{
		ID:         pageID,
		CrawlID:    crawlID,
		URL:        "https://example.com/about",
		StatusCode: 200,
		Title:      "About",
	})
	require.NoError(t, err)
	assert.Equal(t, pageID, gotID)

	require.NoError(t, store.CreateLinks(ctx, pageID, []seo.LinkRecord{
		{PageID: pageID, TargetURL: "https://example.com/", Type: seo.LinkInternal},
		{PageID: pageID, TargetURL: "https://other.net/", Type: seo.LinkExternal},
	}))

	require.NoError(t, store.CreateIssue(ctx, seo.IssueRecord{
		CrawlID:  crawlID,
		PageID:   &pageID,
		Type:     "content.missing_description",
		Severity: seo.SeverityWarning,
		Category: seo.CategoryContent,
	}))

	pages := store.Pages(crawlID)
	require.Len(t, pages, 1)
	assert.Equal(t, "https://example.com/about", pages[0].URL)

	links := store.Links(pageID)
	require.Len(t, links, 2)

	issues := store.Issues(crawlID)
	require.Len(t, issues, 1)
	assert.Equal(t, "content.missing_description", issues[0].Type)
	require.NotNil(t, issues[0].PageID)
	assert.Equal(t, pageID, *issues[0].PageID)

	assert.Empty(t, store.Pages(uuid.New()))
	assert.Empty(t, store.Issues(uuid.New()))
}
