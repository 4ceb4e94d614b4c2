package caching

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/pkg/cache"
)

var errMiss = errors.New("miss")

type fakeRemote struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: map[string][]byte{}}
}

func (f *fakeRemote) GetBytes(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, errors.New("connection refused")
	}
	v, ok := f.data[key]
	if !ok {
		return nil, errMiss
	}
	return v, nil
}

func (f *fakeRemote) SetBytes(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeRemote) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func TestPageKeyRouteIdentity(t *testing.T) {
	tests := []struct {
		name  string
		opts  domain.PageRenderOptions
		empty bool
	}{
		{"index", domain.PageRenderOptions{PageType: domain.PageIndex}, false},
		{"product with id", domain.PageRenderOptions{PageType: domain.PageProduct, Handle: "shoe", ProductID: "p1"}, false},
		{"product without id", domain.PageRenderOptions{PageType: domain.PageProduct, Handle: "shoe"}, true},
		{"collection without id", domain.PageRenderOptions{PageType: domain.PageCollection, Handle: "summer"}, true},
		{"cart", domain.PageRenderOptions{PageType: domain.PageCart}, true},
		{"checkout", domain.PageRenderOptions{PageType: domain.PageCheckout, CheckoutToken: "t"}, true},
		{"editor", domain.PageRenderOptions{PageType: domain.PageIndex, EditorMode: true}, true},
		{"static page", domain.PageRenderOptions{PageType: domain.PagePage, Handle: "about"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := PageKey("s1", tt.opts, "", nil)
			if tt.empty {
				assert.Empty(t, key)
			} else {
				assert.True(t, strings.HasPrefix(key, "s1/page/"), key)
			}
		})
	}
}

func TestPageKeyDistinguishesEntities(t *testing.T) {
	a := PageKey("s1", domain.PageRenderOptions{PageType: domain.PageProduct, Handle: "shoe", ProductID: "p1"}, "", nil)
	b := PageKey("s1", domain.PageRenderOptions{PageType: domain.PageProduct, Handle: "shoe", ProductID: "p2"}, "", nil)
	nested := PageKey("s1", domain.PageRenderOptions{PageType: domain.PageProduct, Handle: "shoe", ProductID: "p1", CollectionHandle: "sale"}, "", nil)
	other := PageKey("s2", domain.PageRenderOptions{PageType: domain.PageProduct, Handle: "shoe", ProductID: "p1"}, "", nil)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, nested)
	assert.NotEqual(t, a, other)
}

func TestPageKeyCanonicalisesQuery(t *testing.T) {
	opts := domain.PageRenderOptions{PageType: domain.PageCollection, CollectionID: "c1"}
	q1, _ := url.ParseQuery("sort_by=price&filter.p.tag=red&filter.p.tag=blue&utm_source=mail")
	q2, _ := url.ParseQuery("filter.p.tag=blue&sort_by=price&filter.p.tag=red&fbclid=x")
	q3, _ := url.ParseQuery("sort_by=title")

	assert.Equal(t, PageKey("s1", opts, "", q1), PageKey("s1", opts, "", q2))
	assert.NotEqual(t, PageKey("s1", opts, "", q1), PageKey("s1", opts, "", q3))

	tracking, _ := url.ParseQuery("utm_campaign=x&gclid=y")
	assert.Equal(t, PageKey("s1", opts, "", nil), PageKey("s1", opts, "", tracking))
}

func TestPageKeyVariesByLocale(t *testing.T) {
	opts := domain.PageRenderOptions{PageType: domain.PageIndex}
	fr := PageKey("s1", opts, "fr", nil)
	en := PageKey("s1", opts, "en", nil)
	assert.NotEqual(t, fr, en)
	assert.NotEqual(t, PageKey("s1", opts, "", nil), fr)
	assert.Equal(t, fr, PageKey("s1", opts, " FR ", nil))
}

func TestRenderQueryDropsTrackingOnly(t *testing.T) {
	q, _ := url.ParseQuery("utm_source=mail&fbclid=x&sort_by=price&q=shoe&token=abc")
	out := RenderQuery(q)
	assert.Equal(t, url.Values{"sort_by": {"price"}, "q": {"shoe"}, "token": {"abc"}}, out)

	out.Set("sort_by", "title")
	assert.Equal(t, "price", q.Get("sort_by"))
}

func TestPolicyPageTTL(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 30*time.Minute, p.PageTTL(domain.PageIndex))
	assert.Equal(t, 60*time.Minute, p.PageTTL(domain.PageProduct))
	assert.Equal(t, 45*time.Minute, p.PageTTL(domain.PageCollection))
	assert.Equal(t, 24*time.Hour, p.PageTTL(domain.PagePage))
	assert.Equal(t, 24*time.Hour, p.PageTTL(domain.PageNotFound))
	assert.Zero(t, p.PageTTL(domain.PageCart))

	p.Pages[domain.PageCheckout] = time.Hour
	assert.Zero(t, p.PageTTL(domain.PageCheckout), "checkout is never cacheable")
	assert.Equal(t, 15*time.Minute, p.TTL(CategoryProduct))
	assert.Equal(t, 60*time.Minute, p.TTL(CategoryTemplateCompiled))
}

func TestInvalidateStoreIsScoped(t *testing.T) {
	c := New(DefaultPolicy(), nil)
	c.Store(CategoryTemplateRaw).Set(TemplateKey("s1", "layout/theme.liquid"), "a", time.Hour)
	c.Store(CategoryTemplateRaw).Set(TemplateKey("s10", "layout/theme.liquid"), "b", time.Hour)
	c.Store(CategoryTemplateCompiled).Set(TemplateKey("s1", "sections/hero.liquid"), "c", time.Hour)
	c.Store(CategoryProduct).Set(StoreKey("s1", "list", "all"), "d", time.Hour)
	c.Store(CategoryProduct).Set(StoreKey("s10", "list", "all"), "e", time.Hour)
	c.Store(CategoryDomain).Set("s1.example.com", "f", time.Hour)

	assert.Equal(t, 3, c.InvalidateStore("s1"))

	_, ok := c.Store(CategoryTemplateRaw).Get(TemplateKey("s10", "layout/theme.liquid"))
	assert.True(t, ok, "other store with a shared id prefix survives")
	_, ok = c.Store(CategoryProduct).Get(StoreKey("s10", "list", "all"))
	assert.True(t, ok)
	_, ok = c.Store(CategoryDomain).Get("s1.example.com")
	assert.True(t, ok, "domain entries are owned by the resolver")
}

func TestCachesSweep(t *testing.T) {
	now := time.Unix(1000, 0)
	c := New(DefaultPolicy(), nil, cache.WithClock(func() time.Time { return now }))
	c.Store(CategoryNavigation).Set("s1/menus", 1, time.Minute)
	c.Store(CategoryNavigation).Set("s1/other", 1, time.Hour)
	now = now.Add(2 * time.Minute)

	assert.Equal(t, 1, c.CleanExpired()[CategoryNavigation])
	assert.Equal(t, 0, c.CleanExpired()[CategoryNavigation])
	assert.Equal(t, cache.Stats{Total: 1, Active: 1}, c.Stats()[CategoryNavigation])
}

func TestPageCacheTiers(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	caches := New(DefaultPolicy(), nil)
	pc, err := NewPageCache(caches, remote, func(err error) bool { return errors.Is(err, errMiss) }, nil)
	require.NoError(t, err)
	defer pc.Close()

	result := &domain.RenderResult{
		HTML:     "<html>hi</html>",
		Metadata: domain.Metadata{Title: "Home", OpenGraph: map[string]string{"og:title": "Home"}},
		CacheKey: "s1/page/index/-",
		CacheTTL: time.Hour,
	}
	pc.Set(ctx, result.CacheKey, result)

	got, ok := pc.Get(ctx, result.CacheKey)
	require.True(t, ok)
	assert.Equal(t, "<html>hi</html>", got.HTML)

	// a fresh process sees the shared tier only
	cold, err := NewPageCache(New(DefaultPolicy(), nil), remote, nil, nil)
	require.NoError(t, err)
	defer cold.Close()
	got, ok = cold.Get(ctx, result.CacheKey)
	require.True(t, ok)
	assert.Equal(t, "Home", got.Metadata.Title)
	assert.Equal(t, "Home", got.Metadata.OpenGraph["og:title"])

	assert.Equal(t, 2, pc.InvalidateStore(ctx, "s1"))
	_, ok = pc.Get(ctx, result.CacheKey)
	assert.False(t, ok)
}

func TestPageCacheTreatsFailuresAsMisses(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.data["s1/page/index/-"] = []byte("not zstd")
	pc, err := NewPageCache(New(DefaultPolicy(), nil), remote, nil, nil)
	require.NoError(t, err)
	defer pc.Close()

	_, ok := pc.Get(ctx, "s1/page/index/-")
	assert.False(t, ok, "corrupt payload reads as a miss")

	remote.failGet = true
	_, ok = pc.Get(ctx, "s1/page/index/-")
	assert.False(t, ok, "remote outage reads as a miss")

	pc.Set(ctx, "", &domain.RenderResult{HTML: "x", CacheTTL: time.Hour})
	pc.Set(ctx, "s1/page/cart/-", &domain.RenderResult{HTML: "x"})
	_, ok = pc.Get(ctx, "")
	assert.False(t, ok)
	_, ok = pc.Get(ctx, "s1/page/cart/-")
	assert.False(t, ok, "zero TTL is never stored")
}
