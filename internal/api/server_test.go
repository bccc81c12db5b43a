package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seolens/siteaudit/internal/config"
	"github.com/seolens/siteaudit/internal/events"
	iduuid "github.com/seolens/siteaudit/internal/id/uuid"
	"github.com/seolens/siteaudit/internal/seo"
	storagemem "github.com/seolens/siteaudit/internal/storage/memory"
)

type fakeRunner struct {
	done chan uuid.UUID
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{done: make(chan uuid.UUID, 1)}
}

func (r *fakeRunner) Run(_ context.Context, crawlID uuid.UUID) error {
	r.done <- crawlID
	return nil
}

func newTestServer(t *testing.T) (*Server, *storagemem.Store, *fakeRunner, *events.Broker) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	store := storagemem.NewStore()
	runner := newFakeRunner()
	broker := events.NewBroker(0, zap.NewNop())
	server := NewServer(store, runner, broker, iduuid.New(), cfg, zap.NewNop())
	return server, store, runner, broker
}

func TestStartCrawl(t *testing.T) {
	server, store, runner, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"domain": "example.com", "max_pages": 25}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawls", body)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	crawlID, err := uuid.Parse(resp["crawl_id"])
	require.NoError(t, err)

	crawl, err := store.GetCrawl(context.Background(), crawlID)
	require.NoError(t, err)
	assert.Equal(t, "example.com", crawl.Domain)
	assert.Equal(t, 25, crawl.MaxPages)
	assert.Equal(t, seo.CrawlStatusPending, crawl.Status)

	select {
	case ranID := <-runner.done:
		assert.Equal(t, crawlID, ranID)
	case <-time.After(time.Second):
		t.Fatal("runner was not invoked")
	}
}

func TestStartCrawlDefaultsMaxPages(t *testing.T) {
	server, store, runner, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/crawls",
		bytes.NewBufferString(`{"domain": "example.com"}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	crawl, err := store.GetCrawl(context.Background(), uuid.MustParse(resp["crawl_id"]))
	require.NoError(t, err)
	assert.Equal(t, 50, crawl.MaxPages)
	<-runner.done
}

func TestStartCrawlValidation(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{name: "missing domain", body: `{"max_pages": 10}`},
		{name: "invalid json", body: `{domain}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/crawls", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetCrawl(t *testing.T) {
	server, store, _, _ := newTestServer(t)
	crawlID := uuid.New()
	require.NoError(t, store.CreateCrawl(context.Background(), seo.Crawl{
		ID:       crawlID,
		Domain:   "example.com",
		MaxPages: 10,
		Status:   seo.CrawlStatusCompleted,
		Totals:   seo.CrawlTotals{TotalPages: 4, IssuesFound: 2},
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/crawls/"+crawlID.String(), nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var crawl seo.Crawl
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &crawl))
	assert.Equal(t, crawlID, crawl.ID)
	assert.Equal(t, seo.CrawlStatusCompleted, crawl.Status)
	assert.Equal(t, 4, crawl.Totals.TotalPages)
}

func TestGetCrawlErrors(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/crawls/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/crawls/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamCrawlEvents(t *testing.T) {
	server, store, _, broker := newTestServer(t)
	crawlID := uuid.New()
	require.NoError(t, store.CreateCrawl(context.Background(), seo.Crawl{
		ID:       crawlID,
		Domain:   "example.com",
		MaxPages: 10,
		Status:   seo.CrawlStatusRunning,
	}))

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/crawls/" + crawlID.String() + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		// Give the handler time to subscribe before publishing.
		time.Sleep(50 * time.Millisecond)
		broker.Publish(events.Event{
			Type:           events.TypeCrawlProgress,
			CrawlID:        crawlID,
			Status:         string(seo.CrawlStatusRunning),
			PagesProcessed: 1,
			MaxPages:       10,
			Timestamp:      time.Now(),
		})
		broker.Publish(events.Event{
			Type:           events.TypeCrawlCompleted,
			CrawlID:        crawlID,
			Status:         string(seo.CrawlStatusCompleted),
			PagesProcessed: 2,
			MaxPages:       10,
			Timestamp:      time.Now(),
		})
	}()

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		lines = append(lines, strings.TrimRight(line, "\n"))
	}
	payload := strings.Join(lines, "\n")
	assert.Contains(t, payload, "event: crawl_progress")
	assert.Contains(t, payload, "event: crawl_completed")
	assert.Contains(t, payload, `"pages_processed":2`)
}

func TestStreamUnknownCrawlReturns404(t *testing.T) {
	server, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/crawls/"+uuid.NewString()+"/stream", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	server, _, _, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
