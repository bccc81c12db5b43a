package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGetObject(t *testing.T) {
	store := New()

	uri, err := store.PutObject(context.Background(), "crawl-1/abc.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, "mem://crawl-1/abc.html", uri)

	data, ok := store.GetObject("crawl-1/abc.html")
	require.True(t, ok)
	assert.Equal(t, []byte("<html></html>"), data)
	assert.Equal(t, 1, store.Len())

	_, ok = store.GetObject("missing")
	assert.False(t, ok)
}

func TestPutObjectRequiresPath(t *testing.T) {
	store := New()
	_, err := store.PutObject(context.Background(), "  ", "text/html", []byte("x"))
	require.Error(t, err)
}
