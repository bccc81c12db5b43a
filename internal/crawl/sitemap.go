package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/seolens/siteaudit/internal/seo"
)

const maxSitemapDepth = 5

// SitemapLoader downloads and flattens XML sitemaps, following sitemap
// index files recursively. A seen-set guards against index cycles.
type SitemapLoader struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewSitemapLoader builds a loader.
func NewSitemapLoader(userAgent string, timeout time.Duration, logger *zap.Logger) *SitemapLoader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SitemapLoader{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Load returns the page URLs listed in the sitemap at sitemapURL, filtered
// to baseDomain. Errors are logged and degrade to an empty seed list; a
// broken sitemap never fails a crawl.
func (l *SitemapLoader) Load(ctx context.Context, sitemapURL, baseDomain string) []string {
	seen := make(map[string]bool)
	urls := l.load(ctx, sitemapURL, baseDomain, seen, 0)
	l.logger.Info("sitemap loaded",
		zap.String("sitemap", sitemapURL),
		zap.Int("urls", len(urls)))
	return urls
}

func (l *SitemapLoader) load(ctx context.Context, sitemapURL, baseDomain string, seen map[string]bool, depth int) []string {
	if depth > maxSitemapDepth || seen[sitemapURL] {
		return nil
	}
	seen[sitemapURL] = true

	doc, err := l.fetch(ctx, sitemapURL)
	if err != nil {
		l.logger.Warn("sitemap fetch failed", zap.String("sitemap", sitemapURL), zap.Error(err))
		return nil
	}

	var urls []string
	// A sitemap index nests further sitemaps; a urlset lists pages.
	for _, node := range xmlquery.Find(doc, "//*[local-name()='sitemapindex']/*[local-name()='sitemap']/*[local-name()='loc']") {
		child := strings.TrimSpace(node.InnerText())
		if child == "" {
			continue
		}
		urls = append(urls, l.load(ctx, child, baseDomain, seen, depth+1)...)
	}
	for _, node := range xmlquery.Find(doc, "//*[local-name()='urlset']/*[local-name()='url']/*[local-name()='loc']") {
		loc := strings.TrimSpace(node.InnerText())
		if loc == "" || !seo.SameDomain(loc, baseDomain) {
			continue
		}
		urls = append(urls, loc)
	}
	return urls
}

func (l *SitemapLoader) fetch(ctx context.Context, sitemapURL string) (*xmlquery.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new sitemap request: %w", err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			l.logger.Debug("Failed to close sitemap response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap returned status %d", resp.StatusCode)
	}
	doc, err := xmlquery.Parse(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	return doc, nil
}
