package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRobotsEnforcerHonorsDisallow(t *testing.T) {
	var robotsHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		robotsHits.Add(1)
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	policy := NewRobotsEnforcer(true, "siteaudit-test", zap.NewNop())
	ctx := context.Background()

	assert.True(t, policy.Allowed(ctx, server.URL+"/public"))
	assert.False(t, policy.Allowed(ctx, server.URL+"/private/page"))
	assert.True(t, policy.Allowed(ctx, server.URL+"/other"))
	assert.Equal(t, int32(1), robotsHits.Load(), "robots.txt is cached per host")
}

func TestRobotsEnforcerFailsOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	policy := NewRobotsEnforcer(true, "siteaudit-test", zap.NewNop())
	assert.True(t, policy.Allowed(context.Background(), server.URL+"/anything"))
}

func TestRobotsEnforcerUnreachableHostFailsOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := server.URL
	server.Close()

	policy := NewRobotsEnforcer(true, "siteaudit-test", zap.NewNop())
	assert.True(t, policy.Allowed(context.Background(), target+"/page"))
}

func TestRobotsEnforcerCachesFailOpenDecision(t *testing.T) {
	var robotsHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		robotsHits.Add(1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		if conn, _, err := hj.Hijack(); err == nil {
			_ = conn.Close()
		}
	}))
	defer server.Close()

	policy := NewRobotsEnforcer(true, "siteaudit-test", zap.NewNop())
	ctx := context.Background()

	assert.True(t, policy.Allowed(ctx, server.URL+"/a"))
	assert.True(t, policy.Allowed(ctx, server.URL+"/b"))
	assert.Equal(t, int32(1), robotsHits.Load(), "a failed host is probed once, not per URL")
}

func TestAllowAllPolicy(t *testing.T) {
	policy := NewRobotsEnforcer(false, "siteaudit-test", zap.NewNop())
	assert.True(t, policy.Allowed(context.Background(), "https://example.com/anything"))
}
