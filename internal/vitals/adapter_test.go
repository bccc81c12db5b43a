package vitals

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seolens/siteaudit/internal/seo"
)

type stubProvider struct {
	name   string
	result seo.WebVitals
	err    error
	calls  int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Collect(context.Context, string) (seo.WebVitals, error) {
	p.calls++
	return p.result, p.err
}

func TestAdapterUsesFirstProviderWithData(t *testing.T) {
	lcp := int64(1200)
	first := &stubProvider{name: "first", result: seo.WebVitals{LCPMs: &lcp}}
	second := &stubProvider{name: "second"}

	adapter := New([]Provider{first, second}, zap.NewNop())
	result := adapter.Collect(context.Background(), "https://example.com/")
	assert.Equal(t, "first", result.Source)
	require.NotNil(t, result.LCPMs)
	assert.Equal(t, int64(1200), *result.LCPMs)
	assert.Zero(t, second.calls, "second provider is not consulted")
}

func TestAdapterSkipsFailingAndEmptyProviders(t *testing.T) {
	cls := 0.07
	failing := &stubProvider{name: "failing", err: fmt.Errorf("timeout")}
	empty := &stubProvider{name: "empty"}
	working := &stubProvider{name: "working", result: seo.WebVitals{CLS: &cls}}

	adapter := New([]Provider{failing, empty, working}, zap.NewNop())
	result := adapter.Collect(context.Background(), "https://example.com/")
	assert.Equal(t, "working", result.Source)
	require.NotNil(t, result.CLS)
	assert.InDelta(t, 0.07, *result.CLS, 1e-9)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, empty.calls)
}

func TestAdapterAllProvidersFail(t *testing.T) {
	failing := &stubProvider{name: "failing", err: fmt.Errorf("boom")}
	adapter := New([]Provider{failing}, zap.NewNop())

	result := adapter.Collect(context.Background(), "https://example.com/")
	assert.Equal(t, SourceUnavailable, result.Source)
	assert.True(t, result.Empty())
}

func TestAdapterNoProviders(t *testing.T) {
	adapter := New(nil, zap.NewNop())
	result := adapter.Collect(context.Background(), "https://example.com/")
	assert.Equal(t, SourceUnavailable, result.Source)
	assert.True(t, result.Empty())
}

func TestHTTPProviderParsesLenientKeys(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://example.com/page", r.URL.Query().Get("url"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"largest_contentful_paint": 2100.5, "fcp_ms": 900, "cumulative_layout_shift": 0.12}`)
	}))
	defer server.Close()

	provider := NewHTTPProvider("lab", server.URL, time.Second)
	result, err := provider.Collect(context.Background(), "https://example.com/page")
	require.NoError(t, err)
	require.NotNil(t, result.LCPMs)
	assert.Equal(t, int64(2100), *result.LCPMs)
	require.NotNil(t, result.FCPMs)
	assert.Equal(t, int64(900), *result.FCPMs)
	require.NotNil(t, result.CLS)
	assert.InDelta(t, 0.12, *result.CLS, 1e-9)
}

func TestHTTPProviderNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := NewHTTPProvider("lab", server.URL, time.Second)
	_, err := provider.Collect(context.Background(), "https://example.com/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
