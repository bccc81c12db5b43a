package crawl

import (
	"sync"

	"github.com/seolens/siteaudit/internal/seo"
)

// visitedSet tracks normalized URLs already claimed by the crawl loop.
type visitedSet struct {
	urls sync.Map
}

func newVisitedSet() *visitedSet {
	return &visitedSet{}
}

// MarkIfNew claims a URL, returning true only for the first caller. Marking
// happens before processing so a URL is never processed twice.
func (v *visitedSet) MarkIfNew(normalizedURL string) bool {
	_, loaded := v.urls.LoadOrStore(normalizedURL, struct{}{})
	return !loaded
}

// Seen reports whether a URL has been claimed.
func (v *visitedSet) Seen(normalizedURL string) bool {
	_, ok := v.urls.Load(normalizedURL)
	return ok
}

// linkCheckCache memoizes internal link verification per normalized target
// for the duration of one crawl.
type linkCheckCache struct {
	mu      sync.Mutex
	results map[string]seo.LinkCheck
}

func newLinkCheckCache() *linkCheckCache {
	return &linkCheckCache{results: make(map[string]seo.LinkCheck)}
}

// Get returns a cached result.
func (c *linkCheckCache) Get(normalizedURL string) (seo.LinkCheck, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.results[normalizedURL]
	return result, ok
}

// Put stores a result.
func (c *linkCheckCache) Put(normalizedURL string, result seo.LinkCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[normalizedURL] = result
}
