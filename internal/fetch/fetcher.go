// Package fetch retrieves pages over HTTP with politeness delays, retries,
// proxy rotation and optional headless rendering.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/seolens/siteaudit/internal/seo"
)

// Rendering modes.
const (
	ModeHTML = "html"
	ModeJS   = "js"
)

// ErrRendererUnavailable signals that the headless environment cannot start
// at all, as opposed to a single page failing to render.
var ErrRendererUnavailable = errors.New("headless renderer unavailable")

// Renderer produces a fully rendered DOM for a URL.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (*seo.FetchResponse, error)
	Close()
}

// RendererFactory lazily constructs a Renderer. Implementations return an
// error wrapping ErrRendererUnavailable when the environment is missing.
type RendererFactory func() (Renderer, error)

// Config controls fetcher behavior.
type Config struct {
	UserAgent   string
	Delay       time.Duration
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	RenderMode  string
}

// Fetcher retrieves pages. Safe for use from a single crawl goroutine; the
// rendering mode and throttle state are guarded for the fallback paths.
type Fetcher struct {
	cfg    Config
	pool   *ProxyPool
	policy *ExponentialRetryPolicy
	base   *colly.Collector
	logger *zap.Logger

	throttleMu  sync.Mutex
	lastRequest time.Time

	renderMu        sync.Mutex
	mode            string
	renderer        Renderer
	rendererFactory RendererFactory
}

// New builds a Fetcher. The factory may be nil when cfg.RenderMode is html.
func New(cfg Config, pool *ProxyPool, factory RendererFactory, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RenderMode == "" {
		cfg.RenderMode = ModeHTML
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if pool == nil {
		pool = NewProxyPool(nil, 0, logger)
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true

	mode := cfg.RenderMode
	if mode == ModeJS && factory == nil {
		mode = ModeHTML
	}

	return &Fetcher{
		cfg:             cfg,
		pool:            pool,
		policy:          NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffBase, cfg.BackoffMax),
		base:            c,
		logger:          logger,
		mode:            mode,
		rendererFactory: factory,
	}
}

// Mode reports the current rendering mode.
func (f *Fetcher) Mode() string {
	f.renderMu.Lock()
	defer f.renderMu.Unlock()
	return f.mode
}

// Close releases the headless renderer if one was started.
func (f *Fetcher) Close() {
	f.renderMu.Lock()
	defer f.renderMu.Unlock()
	if f.renderer != nil {
		f.renderer.Close()
		f.renderer = nil
	}
}

// Fetch retrieves one page, honoring the politeness delay measured from the
// end of the previous request. In js mode a render failure for a single page
// falls back to a plain fetch; a renderer that cannot start at all downgrades
// the fetcher to html mode for the rest of its lifetime.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*seo.FetchResponse, error) {
	if err := f.throttle(ctx); err != nil {
		return nil, err
	}

	if f.Mode() == ModeJS {
		resp, err := f.renderFetch(ctx, pageURL)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrRendererUnavailable) {
			f.downgrade(err)
		} else {
			f.logger.Debug("headless render failed, using plain fetch",
				zap.String("url", pageURL), zap.Error(err))
		}
	}

	var lastServer *seo.FetchResponse
	for attempt := 0; ; attempt++ {
		resp, err := f.doFetch(ctx, pageURL)
		f.markRequestDone()
		if err == nil {
			return resp, nil
		}
		var srvErr *serverError
		if errors.As(err, &srvErr) {
			lastServer = resp
		}
		if !f.policy.ShouldRetry(err, attempt) {
			if lastServer != nil {
				return lastServer, nil
			}
			return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
		}
		wait := f.policy.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", pageURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch %s: %w", pageURL, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// VerifyLink checks an internal link target with a HEAD request, retrying
// with GET when the server rejects HEAD. Unreachable targets come back with
// a nil status code; this is not an error.
func (f *Fetcher) VerifyLink(ctx context.Context, target string) seo.LinkCheck {
	status, hops, err := f.doVerify(ctx, target, http.MethodHead)
	if err == nil && (status >= 400 || status == http.StatusMethodNotAllowed) {
		if getStatus, getHops, getErr := f.doVerify(ctx, target, http.MethodGet); getErr == nil {
			status, hops = getStatus, getHops
			err = nil
		}
	}
	if err != nil {
		f.logger.Debug("link verification failed", zap.String("url", target), zap.Error(err))
		return seo.LinkCheck{URL: target}
	}
	return seo.LinkCheck{URL: target, StatusCode: &status, RedirectHops: hops}
}

func (f *Fetcher) doFetch(ctx context.Context, pageURL string) (*seo.FetchResponse, error) {
	collector, proxy := f.buildCollector()

	var (
		result   *seo.FetchResponse
		fetchErr error
		hops     int
	)
	collector.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		hops = len(via)
		return nil
	})
	collector.OnResponse(func(r *colly.Response) {
		result = &seo.FetchResponse{
			URL:          r.Request.URL.String(),
			StatusCode:   r.StatusCode,
			Headers:      r.Headers.Clone(),
			Body:         append([]byte(nil), r.Body...),
			RedirectHops: hops,
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	start := time.Now()
	if err := f.runCollector(ctx, func() error { return collector.Visit(pageURL) }, &fetchErr); err != nil {
		f.pool.ReportFailure(proxy)
		return nil, err
	}
	if result == nil {
		f.pool.ReportFailure(proxy)
		return nil, fmt.Errorf("no response received for %s", pageURL)
	}
	result.Duration = time.Since(start)
	if result.StatusCode >= 500 {
		f.pool.ReportFailure(proxy)
		return result, &serverError{status: result.StatusCode}
	}
	f.pool.ReportSuccess(proxy)
	return result, nil
}

func (f *Fetcher) doVerify(ctx context.Context, target, method string) (int, int, error) {
	collector, proxy := f.buildCollector()

	var (
		status   int
		hops     int
		fetchErr error
	)
	collector.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		hops = len(via)
		return nil
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	visit := func() error {
		if method == http.MethodHead {
			return collector.Head(target)
		}
		return collector.Visit(target)
	}
	if err := f.runCollector(ctx, visit, &fetchErr); err != nil {
		f.pool.ReportFailure(proxy)
		return 0, 0, err
	}
	f.pool.ReportSuccess(proxy)
	return status, hops, nil
}

func (f *Fetcher) buildCollector() (*colly.Collector, string) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	proxy := f.pool.Next()
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			collector.SetProxyFunc(func(*http.Request) (*url.URL, error) {
				return proxyURL, nil
			})
		}
	}
	return collector, proxy
}

func (f *Fetcher) runCollector(ctx context.Context, visit func() error, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) renderFetch(ctx context.Context, pageURL string) (*seo.FetchResponse, error) {
	renderer, err := f.activeRenderer()
	if err != nil {
		return nil, err
	}
	resp, err := renderer.Render(ctx, pageURL)
	f.markRequestDone()
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", pageURL, err)
	}
	resp.UsedHeadless = true
	return resp, nil
}

func (f *Fetcher) activeRenderer() (Renderer, error) {
	f.renderMu.Lock()
	defer f.renderMu.Unlock()
	if f.renderer != nil {
		return f.renderer, nil
	}
	if f.rendererFactory == nil {
		return nil, ErrRendererUnavailable
	}
	renderer, err := f.rendererFactory()
	if err != nil {
		return nil, fmt.Errorf("start renderer: %w", err)
	}
	f.renderer = renderer
	return renderer, nil
}

func (f *Fetcher) downgrade(cause error) {
	f.renderMu.Lock()
	defer f.renderMu.Unlock()
	if f.mode == ModeHTML {
		return
	}
	f.mode = ModeHTML
	if f.renderer != nil {
		f.renderer.Close()
		f.renderer = nil
	}
	f.logger.Warn("headless rendering unavailable, downgrading to plain fetches", zap.Error(cause))
}

func (f *Fetcher) throttle(ctx context.Context) error {
	if f.cfg.Delay <= 0 {
		return nil
	}
	f.throttleMu.Lock()
	last := f.lastRequest
	f.throttleMu.Unlock()
	if last.IsZero() {
		return nil
	}
	wait := f.cfg.Delay - time.Since(last)
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("throttle wait canceled: %w", ctx.Err())
	case <-time.After(wait):
		return nil
	}
}

// markRequestDone records the end of a network request; the politeness delay
// is measured from this point, not from the start of the request.
func (f *Fetcher) markRequestDone() {
	f.throttleMu.Lock()
	f.lastRequest = time.Now()
	f.throttleMu.Unlock()
}
