package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolens/siteaudit/internal/seo"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStoreWithDB(mock), mock
}

func TestCreateCrawl(t *testing.T) {
	store, mock := newMockStore(t)
	crawlID := uuid.New()

	mock.ExpectExec("INSERT INTO crawls").
		WithArgs(crawlID, "example.com", 50, "", seo.CrawlStatusPending).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateCrawl(context.Background(), seo.Crawl{
		ID:       crawlID,
		Domain:   "example.com",
		MaxPages: 50,
		Status:   seo.CrawlStatusPending,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCrawl(t *testing.T) {
	store, mock := newMockStore(t)
	crawlID := uuid.New()
	start := time.Now().Add(-time.Minute)
	end := time.Now()

	rows := pgxmock.NewRows([]string{
		"id", "domain", "max_pages", "sitemap_url", "status",
		"start_time", "end_time", "total_pages", "issues_found", "error_count",
	}).AddRow(crawlID, "example.com", 50, "", seo.CrawlStatusCompleted, &start, &end, 12, 4, 1)

	mock.ExpectQuery("SELECT (.+) FROM crawls").
		WithArgs(crawlID).
		WillReturnRows(rows)

	crawl, err := store.GetCrawl(context.Background(), crawlID)
	require.NoError(t, err)
	assert.Equal(t, "example.com", crawl.Domain)
	assert.Equal(t, seo.CrawlStatusCompleted, crawl.Status)
	assert.Equal(t, seo.CrawlTotals{TotalPages: 12, IssuesFound: 4, ErrorCount: 1}, crawl.Totals)
	require.NotNil(t, crawl.StartTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCrawlNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	crawlID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM crawls").
		WithArgs(crawlID).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetCrawl(context.Background(), crawlID)
	assert.ErrorIs(t, err, seo.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCrawlStatusMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	crawlID := uuid.New()

	mock.ExpectExec("UPDATE crawls SET status").
		WithArgs(seo.CrawlStatusRunning, crawlID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.SetCrawlStatus(context.Background(), crawlID, seo.CrawlStatusRunning)
	assert.ErrorIs(t, err, seo.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCrawlTotals(t *testing.T) {
	store, mock := newMockStore(t)
	crawlID := uuid.New()
	start := time.Now().Add(-time.Minute)
	end := time.Now()

	mock.ExpectExec("UPDATE crawls").
		WithArgs(&start, &end, 3, 2, 1, crawlID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.SetCrawlTotals(context.Background(), crawlID, &start, &end,
		seo.CrawlTotals{TotalPages: 3, IssuesFound: 2, ErrorCount: 1})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePage(t *testing.T) {
	store, mock := newMockStore(t)
	pageID := uuid.New()
	crawlID := uuid.New()
	fetchedAt := time.Now()

	mock.ExpectQuery("INSERT INTO pages").
		WithArgs(pageID, crawlID, "https://example.com/about", 200,
			"About", "About the company", "About us",
			int64(850), 2048, "abc123", "", fetchedAt, []byte(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(pageID))

	gotID, err := store.CreatePage(context.Background(), seo.PageRecord{
		ID:          pageID,
		CrawlID:     crawlID,
		URL:         "https://example.com/about",
		StatusCode:  200,
		Title:       "About",
		Description: "About the company",
		H1:          "About us",
		LoadTimeMs:  850,
		SizeBytes:   2048,
		ContentHash: "abc123",
		FetchedAt:   fetchedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, pageID, gotID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLinks(t *testing.T) {
	store, mock := newMockStore(t)
	pageID := uuid.New()

	mock.ExpectExec("INSERT INTO links").
		WithArgs(pageID, "https://example.com/", seo.LinkInternal, "Home").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO links").
		WithArgs(pageID, "https://other.net/", seo.LinkExternal, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateLinks(context.Background(), pageID, []seo.LinkRecord{
		{PageID: pageID, TargetURL: "https://example.com/", Type: seo.LinkInternal, AnchorText: "Home"},
		{PageID: pageID, TargetURL: "https://other.net/", Type: seo.LinkExternal},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIssue(t *testing.T) {
	store, mock := newMockStore(t)
	crawlID := uuid.New()
	pageID := uuid.New()

	mock.ExpectExec("INSERT INTO issues").
		WithArgs(crawlID, &pageID, "content.missing_title", seo.SeverityWarning,
			seo.CategoryContent, "Page has no <title> element", "Add a descriptive <title>").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateIssue(context.Background(), seo.IssueRecord{
		CrawlID:     crawlID,
		PageID:      &pageID,
		Type:        "content.missing_title",
		Severity:    seo.SeverityWarning,
		Category:    seo.CategoryContent,
		Description: "Page has no <title> element",
		FixTemplate: "Add a descriptive <title>",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
