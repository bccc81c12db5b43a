// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Vitals     VitalsConfig     `mapstructure:"vitals"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the crawl loop and fetch politeness.
type CrawlerConfig struct {
	UserAgent       string `mapstructure:"user_agent"`
	RequestDelayMs  int    `mapstructure:"request_delay_ms"`
	MaxPagesDefault int    `mapstructure:"max_pages_default"`
	RenderingMode   string `mapstructure:"rendering_mode"`
}

// HTTPConfig configures fetch timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// ProxyConfig lists outbound proxies for the fetcher pool.
type ProxyConfig struct {
	URLs        []string `mapstructure:"urls"`
	MaxFailures int      `mapstructure:"max_failures"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
}

// VitalsProvider names one Core Web Vitals measurement endpoint. Providers
// are tried in the configured order.
type VitalsProvider struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// VitalsConfig configures the performance adapter.
type VitalsConfig struct {
	Providers      []VitalsProvider `mapstructure:"providers"`
	TimeoutSeconds int              `mapstructure:"timeout_seconds"`
}

// ThresholdsConfig holds the audit rule severity thresholds.
type ThresholdsConfig struct {
	SlowPageWarnMs        int64   `mapstructure:"slow_page_warn_ms"`
	SlowPageCriticalMs    int64   `mapstructure:"slow_page_critical_ms"`
	LCPNeedsImprovementMs int64   `mapstructure:"lcp_needs_improvement_ms"`
	LCPPoorMs             int64   `mapstructure:"lcp_poor_ms"`
	FCPWarnMs             int64   `mapstructure:"fcp_warn_ms"`
	CLSNeedsImprovement   float64 `mapstructure:"cls_needs_improvement"`
	CLSPoor               float64 `mapstructure:"cls_poor"`
	RedirectChainHops     int     `mapstructure:"redirect_chain_hops"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// project disables the Pub/Sub notifier.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig controls raw HTML archiving.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.user_agent", "siteaudit-bot/1.0")
	v.SetDefault("crawler.request_delay_ms", 1000)
	v.SetDefault("crawler.max_pages_default", 50)
	v.SetDefault("crawler.rendering_mode", "html")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 30000)
	v.SetDefault("proxy.max_failures", 5)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("vitals.timeout_seconds", 20)
	v.SetDefault("thresholds.slow_page_warn_ms", 2000)
	v.SetDefault("thresholds.slow_page_critical_ms", 4000)
	v.SetDefault("thresholds.lcp_needs_improvement_ms", 2500)
	v.SetDefault("thresholds.lcp_poor_ms", 4000)
	v.SetDefault("thresholds.fcp_warn_ms", 3000)
	v.SetDefault("thresholds.cls_needs_improvement", 0.1)
	v.SetDefault("thresholds.cls_poor", 0.25)
	v.SetDefault("thresholds.redirect_chain_hops", 2)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Crawler.MaxPagesDefault <= 0 {
		return fmt.Errorf("crawler.max_pages_default must be > 0")
	}
	switch c.Crawler.RenderingMode {
	case "html", "js":
	default:
		return fmt.Errorf("crawler.rendering_mode must be html or js, got %q", c.Crawler.RenderingMode)
	}
	switch c.Archive.Provider {
	case "none", "gcs", "memory":
	default:
		return fmt.Errorf("unknown archive.provider: %s", c.Archive.Provider)
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	return nil
}

// RequestDelay converts the politeness delay to a duration.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.Crawler.RequestDelayMs) * time.Millisecond
}

// HTTPTimeout converts the fetch timeout to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
