package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSitemapLoaderFlattensIndex(t *testing.T) {
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap-pages.xml</loc></sitemap>
  <sitemap><loc>%s/sitemap-posts.xml</loc></sitemap>
</sitemapindex>`, serverURL, serverURL)
	})
	mux.HandleFunc("/sitemap-pages.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/about</loc></url>
  <url><loc>https://other.example.net/ignored</loc></url>
</urlset>`, serverURL)
	})
	mux.HandleFunc("/sitemap-posts.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/posts/hello</loc></url>
</urlset>`, serverURL)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL

	loader := NewSitemapLoader("siteaudit-test", time.Second, zap.NewNop())
	urls := loader.Load(context.Background(), server.URL+"/sitemap.xml", hostOf(server))

	assert.Equal(t, []string{server.URL + "/about", server.URL + "/posts/hello"}, urls)
}

func TestSitemapLoaderGuardsAgainstCycles(t *testing.T) {
	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		// An index that references itself must not loop forever.
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap.xml</loc></sitemap>
</sitemapindex>`, serverURL)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL

	loader := NewSitemapLoader("siteaudit-test", time.Second, zap.NewNop())
	urls := loader.Load(context.Background(), server.URL+"/sitemap.xml", hostOf(server))
	assert.Empty(t, urls)
}

func TestSitemapLoaderBrokenSitemapDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	loader := NewSitemapLoader("siteaudit-test", time.Second, zap.NewNop())
	urls := loader.Load(context.Background(), server.URL+"/sitemap.xml", hostOf(server))
	assert.Empty(t, urls)
}
