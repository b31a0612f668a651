package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rectify/internal/metrics"
)

func TestKey(t *testing.T) {
	a := Key("llm", "deepseek", "prompt")
	b := Key("llm", "deepseek", "prompt")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "rectify:v1:llm:"))

	assert.NotEqual(t, Key("llm", "ab", "c"), Key("llm", "a", "bc"))
	assert.NotEqual(t, Key("llm", "x"), Key("embed", "x"))
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	require.NoError(t, c.Set("k", []byte("v"), 0))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	key := Key("embed", "text-embedding-3-small", "Python is interpreted")

	require.NoError(t, c.Set(key, []byte("vector"), 0))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("vector"), got)

	require.NoError(t, c.Set(key, []byte("stale"), -time.Second))
	_, ok = c.Get(key)
	assert.False(t, ok, "expired entries are not returned")

	assert.NoError(t, c.Delete(key), "deleting a missing entry is not an error")
}

func TestLayeredCache_PromotesFromDisk(t *testing.T) {
	dir := t.TempDir()
	disk := NewDiskCache(dir, time.Hour)
	require.NoError(t, disk.Set("k", []byte("from-disk"), 0))

	c := NewLayeredCache(time.Minute, dir, time.Hour)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("from-disk"), got)

	got, ok = c.memory.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("from-disk"), got)
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	buf := []byte("vector")
	require.NoError(t, c.Set("k", buf, 0))
	buf[0] = 'X'

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("vector"), got)

	got[0] = 'Y'
	again, _ := c.Get("k")
	assert.Equal(t, []byte("vector"), again)
}

func TestDiskCache_ShardedLayout(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := Key(NamespaceEmbed, "model", "text")

	require.NoError(t, c.Set(key, []byte("v"), 0))

	hash := strings.TrimPrefix(key, keyPrefix+NamespaceEmbed+":")
	assert.FileExists(t, filepath.Join(dir, NamespaceEmbed, hash[:2], hash+".cache"))
}

func TestDiskCache_RejectsForeignEntry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	a := Key(NamespaceLLM, "a")
	b := Key(NamespaceLLM, "b")
	require.NoError(t, c.Set(a, []byte("for a"), 0))

	// an entry copied under another key's file is not served
	data, err := os.ReadFile(c.path(a))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(c.path(b)), 0o755))
	require.NoError(t, os.WriteFile(c.path(b), data, 0o644))

	_, ok := c.Get(b)
	assert.False(t, ok)
	assert.NoFileExists(t, c.path(b))
}

func TestDiskCache_Prune(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewDiskCache(t.TempDir(), time.Hour)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(Key(NamespaceEmbed, "live"), []byte("1"), time.Hour))
	require.NoError(t, c.Set(Key(NamespaceEmbed, "old"), []byte("2"), time.Minute))

	now = now.Add(10 * time.Minute)
	removed, err := c.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := c.Get(Key(NamespaceEmbed, "live"))
	assert.True(t, ok)
}

func TestDiskCache_PruneMissingDir(t *testing.T) {
	c := NewDiskCache(filepath.Join(t.TempDir(), "never-created"), time.Hour)
	removed, err := c.Prune()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestLayeredCache_SetWritesBothLayers(t *testing.T) {
	c := NewLayeredCache(time.Minute, t.TempDir(), time.Hour)
	require.NoError(t, c.Set("k", []byte("v"), 0))

	_, ok := c.memory.Get("k")
	assert.True(t, ok)
	_, ok = c.disk.Get("k")
	assert.True(t, ok)

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestInstrumented(t *testing.T) {
	hits := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("cache-test", "hit"))
	misses := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("cache-test", "miss"))

	c := Instrumented(NewMemoryCache(time.Minute, time.Minute), "cache-test")
	require.NoError(t, c.Set("k", []byte("v"), 0))
	_, _ = c.Get("k")
	_, _ = c.Get("missing")

	assert.Equal(t, hits+1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("cache-test", "hit")))
	assert.Equal(t, misses+1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("cache-test", "miss")))
}
