package templates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
)

// gatedStorage counts reads and holds them until released
type gatedStorage struct {
	domain.ObjectStorage
	gets    atomic.Int32
	release chan struct{}
	ctxErr  atomic.Value
}

func (g *gatedStorage) Get(ctx context.Context, key string) ([]byte, error) {
	g.gets.Add(1)
	if g.release != nil {
		<-g.release
	}
	if err := ctx.Err(); err != nil {
		g.ctxErr.Store(err)
	}
	return g.ObjectStorage.Get(ctx, key)
}

var testStore = &domain.Store{ID: "s1", Name: "Acme", Currency: domain.DefaultCurrency()}

func newLoader(t *testing.T, files map[string]string) (*Loader, *gatedStorage, *caching.Caches) {
	t.Helper()
	mem := storage.NewMemStore()
	for path, content := range files {
		require.NoError(t, mem.Put(context.Background(), domain.TemplateKey("s1", path), []byte(content), "text/plain"))
	}
	gs := &gatedStorage{ObjectStorage: mem}
	caches := caching.New(caching.DefaultPolicy(), nil)
	return NewLoader(gs, caches, Options{Timeout: time.Second, AssetBaseURL: "/cdn"}, nil), gs, caches
}

func TestLoadTemplateCoalescesConcurrentFetches(t *testing.T) {
	l, gs, _ := newLoader(t, map[string]string{"layout/theme.liquid": "<html>{{ content_for_layout }}</html>"})
	gs.release = make(chan struct{})

	const n = 20
	var started, done sync.WaitGroup
	started.Add(n)
	done.Add(n)
	results := make([]string, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			s, err := l.LoadTemplate(context.Background(), "s1", "layout/theme.liquid")
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(gs.release)
	done.Wait()

	assert.Equal(t, int32(1), gs.gets.Load())
	for _, r := range results {
		assert.Equal(t, "<html>{{ content_for_layout }}</html>", r)
	}

	_, err := l.LoadTemplate(context.Background(), "s1", "layout/theme.liquid")
	require.NoError(t, err)
	assert.Equal(t, int32(1), gs.gets.Load(), "served from cache")
}

func TestAbandonedCallerDoesNotCancelSharedFetch(t *testing.T) {
	l, gs, _ := newLoader(t, map[string]string{"sections/hero.liquid": "hero"})
	gs.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := l.LoadTemplate(ctx, "s1", "sections/hero.liquid")
		first <- err
	}()
	second := make(chan string, 1)
	go func() {
		s, _ := l.LoadTemplate(context.Background(), "s1", "sections/hero.liquid")
		second <- s
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(gs.release)
	assert.Equal(t, "hero", <-second)
	assert.Nil(t, gs.ctxErr.Load(), "the storage call kept its own context")
}

func TestLoadTemplateMissing(t *testing.T) {
	l, _, _ := newLoader(t, nil)
	_, err := l.LoadTemplate(context.Background(), "s1", "layout/theme.liquid")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCompiledTemplateFollowsSourceHash(t *testing.T) {
	l, gs, caches := newLoader(t, map[string]string{"templates/page.liquid": "v1"})
	ctx := context.Background()

	t1, err := l.LoadCompiledTemplate(ctx, testStore, "templates/page.liquid")
	require.NoError(t, err)
	t2, err := l.LoadCompiledTemplate(ctx, testStore, "templates/page.liquid")
	require.NoError(t, err)
	assert.Same(t, t1, t2)

	key := domain.TemplateKey("s1", "templates/page.liquid")
	require.NoError(t, gs.Put(ctx, key, []byte("v2"), "text/plain"))
	caches.Store(caching.CategoryTemplateRaw).Delete(key)

	t3, err := l.LoadCompiledTemplate(ctx, testStore, "templates/page.liquid")
	require.NoError(t, err)
	assert.NotEqual(t, t1.Hash, t3.Hash)

	engine, err := l.Engine(ctx, testStore)
	require.NoError(t, err)
	out, err := engine.Render(t3, liquid.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "v2", out)
}

func TestCompileErrorNamesPath(t *testing.T) {
	l, _, _ := newLoader(t, map[string]string{"sections/broken.liquid": "{% if x %}never closed"})
	_, err := l.LoadCompiledTemplate(context.Background(), testStore, "sections/broken.liquid")
	require.Error(t, err)
	var ce *liquid.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, err.Error(), "sections/broken.liquid")
}

func TestInvalidateStoreResetsCachesAndEngine(t *testing.T) {
	l, gs, _ := newLoader(t, map[string]string{"layout/theme.liquid": "a"})
	ctx := context.Background()
	_, err := l.LoadCompiledTemplate(ctx, testStore, "layout/theme.liquid")
	require.NoError(t, err)
	e1, _ := l.Engine(ctx, testStore)

	assert.Equal(t, 2, l.InvalidateStore("s1"))
	e2, _ := l.Engine(ctx, testStore)
	assert.NotSame(t, e1, e2)

	before := gs.gets.Load()
	_, err = l.LoadTemplate(ctx, "s1", "layout/theme.liquid")
	require.NoError(t, err)
	assert.Equal(t, before+1, gs.gets.Load())
}

func TestEngineRebuiltWhenCurrencyChanges(t *testing.T) {
	l, _, _ := newLoader(t, nil)
	ctx := context.Background()
	e1, err := l.Engine(ctx, testStore)
	require.NoError(t, err)

	eur := *testStore
	eur.Currency = domain.CurrencyConfig{Code: "EUR", Locale: "de-DE", DecimalPlaces: 2, MoneyFormat: "{{amount_with_comma_separator}} €"}
	e2, err := l.Engine(ctx, &eur)
	require.NoError(t, err)
	assert.NotSame(t, e1, e2)
	assert.Equal(t, "EUR", e2.Environment().Currency.Code)
}

func TestLoadSettingsLayersDataOverSchemaDefaults(t *testing.T) {
	l, _, _ := newLoader(t, map[string]string{
		"config/settings_schema.json": `[{"name":"Colors","settings":[
			{"id":"color_primary","type":"color","default":"#111111"},
			{"id":"show_badge","type":"checkbox"}]}]`,
		"config/settings_data.json": `{"current":"Bold","presets":{"Bold":{"color_primary":"#FF0000"}}}`,
	})
	settings, err := l.LoadSettings(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "#FF0000", settings["color_primary"])
	assert.Equal(t, false, settings["show_badge"])
}

func TestLoadSettingsWithoutFiles(t *testing.T) {
	l, _, _ := newLoader(t, nil)
	settings, err := l.LoadSettings(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestTranslationsFromDefaultLocale(t *testing.T) {
	l, _, _ := newLoader(t, map[string]string{
		"locales/en.default.json": `{"products":{"product":{"add_to_cart":"Buy now"}}}`,
	})
	e, err := l.Engine(context.Background(), testStore)
	require.NoError(t, err)
	out, err := e.RenderSource("t", `{{ 'products.product.add_to_cart' | t }}`, liquid.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "Buy now", out)
}

func TestJSONTemplateOrdering(t *testing.T) {
	tpl, err := ParseJSONTemplate([]byte(`{
		"sections": {
			"b": {"type": "featured"},
			"a": {"type": "hero", "blocks": {"x": {"type": "slide"}, "y": {"type": "slide", "disabled": true}, "z": {"type": "slide"}}, "block_order": ["z", "y"]},
			"off": {"type": "newsletter", "disabled": true},
			"extra": {"type": "footer-note"}
		},
		"order": ["a", "b", "missing"]
	}`))
	require.NoError(t, err)

	var ids []string
	for _, s := range tpl.OrderedSections() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "b", "extra"}, ids)

	var blocks []string
	for _, b := range tpl.Sections["a"].OrderedBlocks() {
		blocks = append(blocks, b.ID)
	}
	assert.Equal(t, []string{"z", "x"}, blocks)

	name, ok := tpl.LayoutName()
	assert.True(t, ok)
	assert.Equal(t, "theme", name)

	noLayout, err := ParseJSONTemplate([]byte(`{"layout": false, "sections": {}, "order": []}`))
	require.NoError(t, err)
	_, ok = noLayout.LayoutName()
	assert.False(t, ok)
}
