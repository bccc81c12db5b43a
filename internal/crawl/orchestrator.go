// Package crawl runs the BFS audit loop: fetch, parse, validate links,
// analyze, persist, and publish progress.
package crawl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seolens/siteaudit/internal/events"
	"github.com/seolens/siteaudit/internal/metrics"
	"github.com/seolens/siteaudit/internal/seo"
)

// Fetcher retrieves pages and verifies link targets.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*seo.FetchResponse, error)
	VerifyLink(ctx context.Context, target string) seo.LinkCheck
	Close()
}

// FetcherFactory builds a fresh fetcher for one crawl so per-crawl state
// (throttle clock, proxy health, render mode) does not leak across runs.
type FetcherFactory func() Fetcher

// Parser extracts signals from HTML.
type Parser interface {
	Parse(pageURL string, body []byte, baseDomain string) (*seo.PageSignals, error)
}

// VitalsCollector gathers Core Web Vitals. Implementations never fail.
type VitalsCollector interface {
	Collect(ctx context.Context, pageURL string) seo.WebVitals
}

// Analyzer evaluates audit rules over one page.
type Analyzer interface {
	Analyze(signals *seo.PageSignals, statusCode int, loadTimeMs int64) []seo.Issue
}

// EventPublisher receives crawl progress events.
type EventPublisher interface {
	Publish(evt events.Event)
}

// Deps wires the orchestrator's collaborators. Archiver and Vitals may be
// nil to disable those stages.
type Deps struct {
	Store          seo.Store
	FetcherFactory FetcherFactory
	Parser         Parser
	Vitals         VitalsCollector
	Analyzer       Analyzer
	Robots         RobotsPolicy
	Sitemaps       *SitemapLoader
	Publisher      EventPublisher
	Notifier       seo.Notifier
	Archiver       seo.Archiver
	IDs            seo.IDGenerator
	Clock          seo.Clock
	Logger         *zap.Logger

	// RedirectChainHops is the minimum hop count that flags a verified
	// internal link as a redirect chain. Defaults to 2.
	RedirectChainHops int
}

// Orchestrator executes crawl jobs.
type Orchestrator struct {
	deps   Deps
	logger *zap.Logger
}

// New builds an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.RedirectChainHops <= 0 {
		deps.RedirectChainHops = 2
	}
	return &Orchestrator{deps: deps, logger: deps.Logger}
}

// Run executes one crawl to completion. The crawl always reaches a terminal
// status: a panic in the loop marks it failed, and end time plus totals are
// persisted on every exit path.
func (o *Orchestrator) Run(ctx context.Context, crawlID uuid.UUID) error {
	crawl, err := o.deps.Store.GetCrawl(ctx, crawlID)
	if err != nil {
		return fmt.Errorf("load crawl %s: %w", crawlID, err)
	}

	startTime := o.deps.Clock.Now()
	if err := o.deps.Store.SetCrawlStatus(ctx, crawlID, seo.CrawlStatusRunning); err != nil {
		return fmt.Errorf("mark crawl running: %w", err)
	}
	// Commit the start time with the running transition so status reads
	// during the crawl carry it.
	if err := o.deps.Store.SetCrawlTotals(ctx, crawlID, &startTime, nil, seo.CrawlTotals{}); err != nil {
		return fmt.Errorf("record crawl start: %w", err)
	}

	state := &runState{
		crawl:     crawl,
		startTime: startTime,
		status:    seo.CrawlStatusCompleted,
		visited:   newVisitedSet(),
		linkCache: newLinkCheckCache(),
	}
	o.publish(state, events.TypeCrawlStarted, "")

	defer o.finalize(state)

	defer func() {
		if r := recover(); r != nil {
			state.status = seo.CrawlStatusFailed
			o.logger.Error("crawl panicked",
				zap.String("crawl_id", crawlID.String()),
				zap.Any("panic", r))
		}
	}()

	fetcher := o.deps.FetcherFactory()
	defer fetcher.Close()

	o.crawlLoop(ctx, state, fetcher)
	return nil
}

type runState struct {
	crawl     seo.Crawl
	startTime time.Time
	status    seo.CrawlStatus
	totals    seo.CrawlTotals
	visited   *visitedSet
	linkCache *linkCheckCache
	alertSent bool
}

func (o *Orchestrator) crawlLoop(ctx context.Context, state *runState, fetcher Fetcher) {
	startURL := startURLFor(state.crawl.Domain)
	baseDomain := seo.Domain(startURL)

	queue := []string{startURL}
	if state.crawl.SitemapURL != "" && o.deps.Sitemaps != nil {
		queue = append(queue, o.deps.Sitemaps.Load(ctx, state.crawl.SitemapURL, baseDomain)...)
	}

	for len(queue) > 0 && state.totals.TotalPages < state.crawl.MaxPages {
		if ctx.Err() != nil {
			state.status = seo.CrawlStatusFailed
			o.logger.Warn("crawl interrupted",
				zap.String("crawl_id", state.crawl.ID.String()),
				zap.Error(ctx.Err()))
			return
		}

		pageURL := queue[0]
		queue = queue[1:]

		norm, err := seo.NormalizeURL(pageURL)
		if err != nil {
			continue
		}
		if !state.visited.MarkIfNew(norm) {
			continue
		}
		if !o.deps.Robots.Allowed(ctx, pageURL) {
			o.logger.Debug("skipping disallowed url", zap.String("url", pageURL))
			continue
		}

		queue = append(queue, o.processPage(ctx, state, fetcher, pageURL, norm, baseDomain)...)
	}
}

// processPage handles one URL end to end and returns newly discovered
// internal links to enqueue.
func (o *Orchestrator) processPage(ctx context.Context, state *runState, fetcher Fetcher, pageURL, normalizedURL, baseDomain string) []string {
	resp, err := fetcher.Fetch(ctx, pageURL)
	if err != nil {
		state.totals.ErrorCount++
		metrics.FetchErrors.Inc()
		o.logger.Warn("fetch failed",
			zap.String("crawl_id", state.crawl.ID.String()),
			zap.String("url", pageURL),
			zap.Error(err))
		o.publish(state, events.TypeCrawlError, pageURL)
		return nil
	}
	loadTimeMs := resp.Duration.Milliseconds()
	metrics.FetchDuration.Observe(resp.Duration.Seconds())

	signals, err := o.deps.Parser.Parse(resp.URL, resp.Body, baseDomain)
	if err != nil {
		o.logger.Warn("parse failed", zap.String("url", pageURL), zap.Error(err))
	}
	signals.URL = pageURL
	signals.FinalURL = resp.URL
	signals.ResponseHeaders = resp.Headers
	signals.RedirectHops = resp.RedirectHops
	if o.deps.Vitals != nil {
		if resp.StatusCode < 400 {
			signals.Vitals = o.deps.Vitals.Collect(ctx, resp.URL)
		} else {
			signals.Vitals = seo.WebVitals{Source: seo.VitalsSourceUnavailable}
		}
	}

	// Validate internal links before the analyzer runs; the link rules read
	// these results from the signals.
	frontier := o.validateLinks(ctx, state, fetcher, signals)

	pageID, persisted := o.persistPage(ctx, state, signals, resp, loadTimeMs)

	issues := o.deps.Analyzer.Analyze(signals, resp.StatusCode, loadTimeMs)
	o.recordIssues(ctx, state, pageID, persisted, signals, issues)

	state.totals.TotalPages++
	metrics.PagesProcessed.Inc()
	o.publish(state, events.TypeCrawlProgress, pageURL)
	return frontier
}

func (o *Orchestrator) validateLinks(ctx context.Context, state *runState, fetcher Fetcher, signals *seo.PageSignals) []string {
	var frontier []string
	for _, link := range signals.InternalLinks {
		linkNorm, err := seo.NormalizeURL(link.URL)
		if err != nil {
			continue
		}
		if !state.visited.Seen(linkNorm) {
			frontier = append(frontier, link.URL)
		}

		check, cached := state.linkCache.Get(linkNorm)
		if !cached {
			check = fetcher.VerifyLink(ctx, link.URL)
			state.linkCache.Put(linkNorm, check)
		}
		switch {
		case check.Broken():
			signals.InvalidInternalLinks = append(signals.InvalidInternalLinks, check)
		case check.RedirectHops >= o.deps.RedirectChainHops:
			signals.RedirectChainLinks = append(signals.RedirectChainLinks, check)
		}
	}
	return frontier
}

func (o *Orchestrator) persistPage(ctx context.Context, state *runState, signals *seo.PageSignals, resp *seo.FetchResponse, loadTimeMs int64) (uuid.UUID, bool) {
	pageID, err := o.deps.IDs.NewRawID()
	if err != nil {
		o.logger.Error("generate page id", zap.Error(err))
		return uuid.Nil, false
	}

	archiveURI := ""
	if o.deps.Archiver != nil && resp.StatusCode < 400 && len(resp.Body) > 0 {
		path := fmt.Sprintf("%s/%s.html", state.crawl.ID, signals.ContentHash)
		uri, archiveErr := o.deps.Archiver.PutObject(ctx, path, "text/html; charset=utf-8", resp.Body)
		if archiveErr != nil {
			o.logger.Warn("archive failed", zap.String("url", signals.URL), zap.Error(archiveErr))
		} else {
			archiveURI = uri
		}
	}

	var performance *seo.WebVitals
	if o.deps.Vitals != nil {
		vitals := signals.Vitals
		performance = &vitals
	}

	page := seo.PageRecord{
		ID:          pageID,
		CrawlID:     state.crawl.ID,
		URL:         signals.URL,
		StatusCode:  resp.StatusCode,
		Title:       signals.Title,
		Description: signals.Description,
		H1:          signals.H1,
		LoadTimeMs:  loadTimeMs,
		SizeBytes:   len(resp.Body),
		ContentHash: signals.ContentHash,
		ArchiveURI:  archiveURI,
		FetchedAt:   o.deps.Clock.Now(),
		Performance: performance,
	}
	if _, err := o.deps.Store.CreatePage(ctx, page); err != nil {
		state.totals.ErrorCount++
		o.logger.Error("persist page failed", zap.String("url", signals.URL), zap.Error(err))
		return pageID, false
	}

	links := make([]seo.LinkRecord, 0, len(signals.InternalLinks)+len(signals.ExternalLinks))
	for _, link := range signals.InternalLinks {
		links = append(links, seo.LinkRecord{PageID: pageID, TargetURL: link.URL, Type: seo.LinkInternal, AnchorText: link.AnchorText})
	}
	for _, link := range signals.ExternalLinks {
		links = append(links, seo.LinkRecord{PageID: pageID, TargetURL: link.URL, Type: seo.LinkExternal, AnchorText: link.AnchorText})
	}
	if len(links) > 0 {
		if err := o.deps.Store.CreateLinks(ctx, pageID, links); err != nil {
			o.logger.Error("persist links failed", zap.String("url", signals.URL), zap.Error(err))
		}
	}
	return pageID, true
}

func (o *Orchestrator) recordIssues(ctx context.Context, state *runState, pageID uuid.UUID, persisted bool, signals *seo.PageSignals, issues []seo.Issue) {
	for _, issue := range issues {
		record := seo.IssueRecord{
			CrawlID:     state.crawl.ID,
			Type:        issue.Type,
			Severity:    issue.Severity,
			Category:    issue.Category,
			Description: issue.Description,
			FixTemplate: issue.FixTemplate,
		}
		if persisted {
			id := pageID
			record.PageID = &id
		}
		if err := o.deps.Store.CreateIssue(ctx, record); err != nil {
			o.logger.Error("persist issue failed", zap.String("type", issue.Type), zap.Error(err))
			continue
		}
		state.totals.IssuesFound++
		metrics.IssuesFound.WithLabelValues(string(issue.Severity)).Inc()

		// At most one critical alert per crawl to avoid notification storms.
		if issue.Severity == seo.SeverityCritical && !state.alertSent && o.deps.Notifier != nil {
			if err := o.deps.Notifier.CriticalIssueFound(ctx, state.crawl.ID, signals.URL, issue.Type, issue.Description); err != nil {
				o.logger.Warn("critical issue notification failed", zap.Error(err))
			}
			state.alertSent = true
		}
	}
}

// finalize persists the terminal state and publishes the closing event. It
// uses a background context so an interrupted crawl still records its end.
func (o *Orchestrator) finalize(state *runState) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endTime := o.deps.Clock.Now()
	if err := o.deps.Store.SetCrawlTotals(ctx, state.crawl.ID, &state.startTime, &endTime, state.totals); err != nil {
		o.logger.Error("persist crawl totals failed", zap.Error(err))
	}
	if err := o.deps.Store.SetCrawlStatus(ctx, state.crawl.ID, state.status); err != nil {
		o.logger.Error("persist crawl status failed", zap.Error(err))
	}
	metrics.CrawlRuns.WithLabelValues(string(state.status)).Inc()

	if state.status == seo.CrawlStatusCompleted {
		o.publish(state, events.TypeCrawlCompleted, "")
		if o.deps.Notifier != nil {
			if err := o.deps.Notifier.CrawlCompleted(ctx, state.crawl.ID, state.totals); err != nil {
				o.logger.Warn("completion notification failed", zap.Error(err))
			}
		}
	} else {
		o.publish(state, events.TypeCrawlFailed, "")
	}

	o.logger.Info("crawl finished",
		zap.String("crawl_id", state.crawl.ID.String()),
		zap.String("status", string(state.status)),
		zap.Int("pages", state.totals.TotalPages),
		zap.Int("issues", state.totals.IssuesFound),
		zap.Int("errors", state.totals.ErrorCount))
}

func (o *Orchestrator) publish(state *runState, eventType, currentURL string) {
	if o.deps.Publisher == nil {
		return
	}
	status := string(seo.CrawlStatusRunning)
	switch eventType {
	case events.TypeCrawlCompleted:
		status = string(seo.CrawlStatusCompleted)
	case events.TypeCrawlFailed:
		status = string(seo.CrawlStatusFailed)
	}
	o.deps.Publisher.Publish(events.Event{
		Type:           eventType,
		CrawlID:        state.crawl.ID,
		Status:         status,
		CurrentURL:     currentURL,
		PagesProcessed: state.totals.TotalPages,
		MaxPages:       state.crawl.MaxPages,
		IssuesFound:    state.totals.IssuesFound,
		ErrorCount:     state.totals.ErrorCount,
		Timestamp:      o.deps.Clock.Now(),
	})
}

// startURLFor turns a bare domain into a crawlable URL, defaulting to https.
func startURLFor(domain string) string {
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}
