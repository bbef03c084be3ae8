package dataset

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheReloadsOnMtimeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	var loads atomic.Int32
	cache := NewCache(func(p string) (string, error) {
		loads.Add(1)
		data, err := os.ReadFile(p)
		return string(data), err
	})

	got, err := cache.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	// No intervening change: served from memory.
	got, err = cache.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
	assert.Equal(t, int32(1), loads.Load())

	// Advance the mtime explicitly so the test does not depend on
	// filesystem timestamp granularity.
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	got, err = cache.Get(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
	assert.Equal(t, int32(2), loads.Load())
}

func TestCacheMissingSourceSurfacesUnavailable(t *testing.T) {
	cache := NewCache(func(p string) (string, error) {
		data, err := os.ReadFile(p)
		return string(data), err
	})

	_, err := cache.Get(filepath.Join(t.TempDir(), "never_produced.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCacheConcurrentReadersLoadOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.txt")
	require.NoError(t, os.WriteFile(path, []byte("shared"), 0o644))

	var loads atomic.Int32
	cache := NewCache(func(p string) (string, error) {
		loads.Add(1)
		time.Sleep(10 * time.Millisecond) // widen the race window
		data, err := os.ReadFile(p)
		return string(data), err
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.Get(path)
			assert.NoError(t, err)
			assert.Equal(t, "shared", got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load(), "concurrent readers must not trigger duplicate reloads")
}

func TestCacheTracksEntriesPerPath(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))

	cache := NewCache(func(p string) (string, error) {
		data, err := os.ReadFile(p)
		return string(data), err
	})

	gotA, err := cache.Get(a)
	require.NoError(t, err)
	gotB, err := cache.Get(b)
	require.NoError(t, err)
	assert.Equal(t, "a", gotA)
	assert.Equal(t, "b", gotB)
}
