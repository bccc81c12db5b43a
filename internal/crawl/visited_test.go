package crawl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolens/siteaudit/internal/seo"
)

func TestVisitedSetMarkIfNew(t *testing.T) {
	visited := newVisitedSet()
	require.True(t, visited.MarkIfNew("https://example.com/a"))
	require.False(t, visited.MarkIfNew("https://example.com/a"))
	require.True(t, visited.MarkIfNew("https://example.com/b"))
	assert.True(t, visited.Seen("https://example.com/a"))
	assert.False(t, visited.Seen("https://example.com/c"))
}

func TestLinkCheckCache(t *testing.T) {
	cache := newLinkCheckCache()

	_, ok := cache.Get("https://example.com/a")
	require.False(t, ok)

	status := 200
	cache.Put("https://example.com/a", seo.LinkCheck{URL: "https://example.com/a", StatusCode: &status})
	check, ok := cache.Get("https://example.com/a")
	require.True(t, ok)
	assert.Equal(t, 200, *check.StatusCode)
}
