package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/storefront/pkg/cache"
)

func TestCacheSweeperEvictsExpired(t *testing.T) {
	now := time.Now()
	caches := caching.New(caching.DefaultPolicy(), nil, cache.WithClock(func() time.Time { return now }))
	caches.Store(caching.CategoryProduct).Set("s1/products/a", 1, time.Minute)
	caches.Store(caching.CategoryProduct).Set("s1/products/b", 2, time.Hour)
	caches.Store(caching.CategoryNavigation).Set("s1/nav/main", 3, time.Second)

	sweeper := NewCacheSweeper(caches, nil, time.Minute)
	assert.Equal(t, 0, sweeper.Sweep())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, sweeper.Sweep())

	_, ok := caches.Store(caching.CategoryProduct).Get("s1/products/b")
	assert.True(t, ok)
	assert.Equal(t, 1, caches.Stats()[caching.CategoryProduct].Total)
}

func TestCacheSweeperStopsOnCancel(t *testing.T) {
	sweeper := NewCacheSweeper(caching.New(caching.DefaultPolicy(), nil), nil, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSplitTemplateKey(t *testing.T) {
	id, p, ok := splitTemplateKey("templates/s1/sections/hero.liquid")
	require.True(t, ok)
	assert.Equal(t, "s1", id)
	assert.Equal(t, "sections/hero.liquid", p)

	for _, key := range []string{"templates/s1", "templates//x.liquid", "assets/s1/a.css", "templates/s1/"} {
		_, _, ok := splitTemplateKey(key)
		assert.False(t, ok, key)
	}
}

type changeRecorder struct {
	mu      sync.Mutex
	changes map[string][]string
}

func (r *changeRecorder) FileChanged(_ context.Context, storeID, filePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.changes == nil {
		r.changes = map[string][]string{}
	}
	r.changes[storeID] = append(r.changes[storeID], filePath)
}

func (r *changeRecorder) calls(storeID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changes[storeID]...)
}

func TestThemeWatcherCoalescesEdits(t *testing.T) {
	root := t.TempDir()
	store := storage.NewFSStore(afero.NewOsFs(), root)
	require.NoError(t, store.Put(context.Background(), "templates/s1/layout/theme.liquid", []byte("v1"), "text/plain"))

	rec := &changeRecorder{}
	w := NewThemeWatcher(root, store, rec, nil)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	file := filepath.Join(root, "templates", "s1", "layout", "theme.liquid")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(file, []byte("edit"), 0o644))
	}

	require.Eventually(t, func() bool { return len(rec.calls("s1")) == 1 }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"layout/theme.liquid"}, rec.calls("s1"))
}

func TestThemeWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	store := storage.NewFSStore(afero.NewOsFs(), root)

	rec := &changeRecorder{}
	w := NewThemeWatcher(root, store, rec, nil)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	dir := filepath.Join(root, "templates", "s2")
	require.NoError(t, os.Mkdir(dir, 0o755))

	// the new directory is watched asynchronously; keep writing until an event lands
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "index.json"), []byte("{}"), 0o644)
		return len(rec.calls("s2")) > 0
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, "index.json", rec.calls("s2")[0])
}
