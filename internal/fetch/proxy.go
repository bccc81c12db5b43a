package fetch

import (
	"crypto/rand"
	"math/big"
	"sync"

	"go.uber.org/zap"
)

type proxyEntry struct {
	url      string
	weight   int
	failures int
}

// ProxyPool rotates outbound proxies with weighted random selection. Proxies
// that reach the failure ceiling are excluded until a success resets them.
type ProxyPool struct {
	mu          sync.Mutex
	entries     []*proxyEntry
	maxFailures int
	logger      *zap.Logger
}

// NewProxyPool builds a pool from proxy URLs, all with weight 1.
func NewProxyPool(urls []string, maxFailures int, logger *zap.Logger) *ProxyPool {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &ProxyPool{maxFailures: maxFailures, logger: logger}
	for _, u := range urls {
		p.Add(u, 1)
	}
	return p
}

// Add registers a proxy with the given selection weight.
func (p *ProxyPool) Add(url string, weight int) {
	if url == "" {
		return
	}
	if weight <= 0 {
		weight = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, &proxyEntry{url: url, weight: weight})
}

// Next picks a healthy proxy by weighted random selection. Returns "" when
// the pool is empty or every proxy has hit the failure ceiling; callers
// treat "" as a direct connection.
func (p *ProxyPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, e := range p.entries {
		if e.failures < p.maxFailures {
			total += e.weight
		}
	}
	if total == 0 {
		return ""
	}
	pick := randomBelow(total)
	for _, e := range p.entries {
		if e.failures >= p.maxFailures {
			continue
		}
		pick -= e.weight
		if pick < 0 {
			return e.url
		}
	}
	return ""
}

// ReportSuccess resets the failure counter for a proxy.
func (p *ProxyPool) ReportSuccess(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.url == url {
			e.failures = 0
			return
		}
	}
}

// ReportFailure increments the failure counter for a proxy.
func (p *ProxyPool) ReportFailure(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.url != url {
			continue
		}
		e.failures++
		if e.failures == p.maxFailures {
			p.logger.Warn("proxy removed from rotation",
				zap.String("proxy", e.url),
				zap.Int("failures", e.failures))
		}
		return
	}
}

// ResetAll clears every failure counter, restoring the full rotation.
func (p *ProxyPool) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		e.failures = 0
	}
}

// ActiveCount reports how many proxies remain in rotation.
func (p *ProxyPool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if e.failures < p.maxFailures {
			n++
		}
	}
	return n
}

func randomBelow(limit int) int {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return int(n.Int64())
}
