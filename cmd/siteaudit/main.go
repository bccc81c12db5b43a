// Command siteaudit runs the SEO audit crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/seolens/siteaudit/internal/api"
	archivegcs "github.com/seolens/siteaudit/internal/archive/gcs"
	archivemem "github.com/seolens/siteaudit/internal/archive/memory"
	"github.com/seolens/siteaudit/internal/audit"
	"github.com/seolens/siteaudit/internal/clock/system"
	"github.com/seolens/siteaudit/internal/config"
	"github.com/seolens/siteaudit/internal/crawl"
	"github.com/seolens/siteaudit/internal/events"
	"github.com/seolens/siteaudit/internal/fetch"
	"github.com/seolens/siteaudit/internal/fetch/headless"
	"github.com/seolens/siteaudit/internal/hash/sha256"
	"github.com/seolens/siteaudit/internal/id/uuid"
	"github.com/seolens/siteaudit/internal/logging"
	"github.com/seolens/siteaudit/internal/notify"
	"github.com/seolens/siteaudit/internal/parse"
	"github.com/seolens/siteaudit/internal/seo"
	storagemem "github.com/seolens/siteaudit/internal/storage/memory"
	storagepg "github.com/seolens/siteaudit/internal/storage/postgres"
	"github.com/seolens/siteaudit/internal/vitals"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	archiver, err := buildArchiver(ctx, cfg)
	if err != nil {
		return err
	}

	broker := events.NewBroker(0, logger)
	hasher := sha256.New()
	ids := uuid.New()
	clk := system.New()

	var providers []vitals.Provider
	for _, p := range cfg.Vitals.Providers {
		providers = append(providers, vitals.NewHTTPProvider(p.Name, p.URL,
			time.Duration(cfg.Vitals.TimeoutSeconds)*time.Second))
	}
	var vitalsCollector crawl.VitalsCollector
	if len(providers) > 0 {
		vitalsCollector = vitals.New(providers, logger)
	}

	thresholds := audit.Thresholds{
		SlowPageWarnMs:        cfg.Thresholds.SlowPageWarnMs,
		SlowPageCriticalMs:    cfg.Thresholds.SlowPageCriticalMs,
		LCPNeedsImprovementMs: cfg.Thresholds.LCPNeedsImprovementMs,
		LCPPoorMs:             cfg.Thresholds.LCPPoorMs,
		FCPWarnMs:             cfg.Thresholds.FCPWarnMs,
		CLSNeedsImprovement:   cfg.Thresholds.CLSNeedsImprovement,
		CLSPoor:               cfg.Thresholds.CLSPoor,
		RedirectChainHops:     cfg.Thresholds.RedirectChainHops,
	}
	analyzer := audit.New(audit.DefaultRules(thresholds), logger)

	orchestrator := crawl.New(crawl.Deps{
		Store:             store,
		FetcherFactory:    fetcherFactory(cfg, logger),
		Parser:            parse.New(hasher, logger),
		Vitals:            vitalsCollector,
		Analyzer:          analyzer,
		Robots:            crawl.NewRobotsEnforcer(true, cfg.Crawler.UserAgent, logger),
		Sitemaps:          crawl.NewSitemapLoader(cfg.Crawler.UserAgent, cfg.HTTPTimeout(), logger),
		Publisher:         broker,
		Notifier:          notifier,
		Archiver:          archiver,
		IDs:               ids,
		Clock:             clk,
		Logger:            logger,
		RedirectChainHops: cfg.Thresholds.RedirectChainHops,
	})

	server := api.NewServer(store, orchestrator, broker, ids, cfg, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// fetcherFactory builds a fresh fetcher per crawl so throttle state, proxy
// health and render mode never leak between runs.
func fetcherFactory(cfg config.Config, logger *zap.Logger) crawl.FetcherFactory {
	return func() crawl.Fetcher {
		pool := fetch.NewProxyPool(cfg.Proxy.URLs, cfg.Proxy.MaxFailures, logger)

		var factory fetch.RendererFactory
		if cfg.Crawler.RenderingMode == fetch.ModeJS {
			factory = func() (fetch.Renderer, error) {
				renderer, err := headless.New(headless.Config{
					MaxParallel:       cfg.Headless.MaxParallel,
					UserAgent:         cfg.Crawler.UserAgent,
					NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
				})
				if err != nil {
					return nil, fmt.Errorf("start headless renderer: %w", err)
				}
				return renderer, nil
			}
		}

		return fetch.New(fetch.Config{
			UserAgent:   cfg.Crawler.UserAgent,
			Delay:       cfg.RequestDelay(),
			Timeout:     cfg.HTTPTimeout(),
			MaxRetries:  cfg.HTTP.MaxRetries,
			BackoffBase: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
			BackoffMax:  time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
			RenderMode:  cfg.Crawler.RenderingMode,
		}, pool, factory, logger)
	}
}

func buildStore(ctx context.Context, cfg config.Config) (seo.Store, func(), error) {
	if cfg.DB.DSN == "" {
		return storagemem.NewStore(), func() {}, nil
	}
	store, err := storagepg.NewStore(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return store, store.Close, nil
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (seo.Notifier, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		return notify.NewLogNotifier(logger), func() {}, nil
	}
	notifier, err := notify.NewPubSubNotifier(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	if err != nil {
		return nil, nil, fmt.Errorf("connect pubsub: %w", err)
	}
	closeFn := func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("close pubsub notifier", zap.Error(err))
		}
	}
	return notifier, closeFn, nil
}

func buildArchiver(ctx context.Context, cfg config.Config) (seo.Archiver, error) {
	switch cfg.Archive.Provider {
	case "none":
		return nil, nil
	case "memory":
		return archivemem.New(), nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		blobStore, err := archivegcs.New(client, archivegcs.Config{
			Bucket: cfg.Archive.GCSBucket,
			Prefix: cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("build gcs archiver: %w", err)
		}
		return blobStore, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}
}
