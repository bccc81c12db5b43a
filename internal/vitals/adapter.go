// Package vitals collects Core Web Vitals from pluggable measurement
// providers.
package vitals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/seolens/siteaudit/internal/seo"
)

// SourceUnavailable marks metrics that no provider could produce.
const SourceUnavailable = seo.VitalsSourceUnavailable

// Provider measures Core Web Vitals for one URL.
type Provider interface {
	Name() string
	Collect(ctx context.Context, pageURL string) (seo.WebVitals, error)
}

// Adapter tries providers in order and returns the first result that carries
// at least one metric. It never fails: when every provider errors or comes
// back empty, the result is an empty snapshot with Source set to
// "unavailable".
type Adapter struct {
	providers []Provider
	logger    *zap.Logger
}

// New builds an Adapter over an ordered provider list.
func New(providers []Provider, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{providers: providers, logger: logger}
}

// Collect gathers vitals for a page.
func (a *Adapter) Collect(ctx context.Context, pageURL string) seo.WebVitals {
	for _, p := range a.providers {
		result, err := p.Collect(ctx, pageURL)
		if err != nil {
			a.logger.Debug("vitals provider failed",
				zap.String("provider", p.Name()),
				zap.String("url", pageURL),
				zap.Error(err))
			continue
		}
		if result.Empty() {
			continue
		}
		result.Source = p.Name()
		return result
	}
	return seo.WebVitals{Source: SourceUnavailable}
}

// HTTPProvider queries a measurement endpoint over HTTP. The endpoint is
// called as GET <endpoint>?url=<page> and is expected to return a JSON
// object; metric keys are matched leniently (lcp_ms, lcp,
// largest_contentful_paint, and so on).
type HTTPProvider struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewHTTPProvider builds a provider for one endpoint.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (p *HTTPProvider) Name() string {
	return p.name
}

// Collect implements Provider.
func (p *HTTPProvider) Collect(ctx context.Context, pageURL string) (seo.WebVitals, error) {
	endpoint, err := url.Parse(p.endpoint)
	if err != nil {
		return seo.WebVitals{}, fmt.Errorf("parse endpoint: %w", err)
	}
	query := endpoint.Query()
	query.Set("url", pageURL)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return seo.WebVitals{}, fmt.Errorf("new vitals request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return seo.WebVitals{}, fmt.Errorf("query vitals provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return seo.WebVitals{}, fmt.Errorf("vitals provider returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return seo.WebVitals{}, fmt.Errorf("read vitals body: %w", err)
	}

	var payload map[string]json.Number
	if err := json.Unmarshal(body, &payload); err != nil {
		return seo.WebVitals{}, fmt.Errorf("decode vitals payload: %w", err)
	}

	result := seo.WebVitals{
		LCPMs: pickInt(payload, "lcp_ms", "lcp", "largest_contentful_paint"),
		FCPMs: pickInt(payload, "fcp_ms", "fcp", "first_contentful_paint"),
		CLS:   pickFloat(payload, "cls", "cumulative_layout_shift"),
	}
	return result, nil
}

func pickInt(payload map[string]json.Number, keys ...string) *int64 {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			if f, err := raw.Float64(); err == nil {
				v := int64(f)
				return &v
			}
		}
	}
	return nil
}

func pickFloat(payload map[string]json.Number, keys ...string) *float64 {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			if f, err := raw.Float64(); err == nil {
				v := f
				return &v
			}
		}
	}
	return nil
}
