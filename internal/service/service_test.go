package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/catalog"
	"github.com/aryan0dhankhar/storefront/internal/composer"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/storefront/internal/ingest"
	"github.com/aryan0dhankhar/storefront/internal/repository"
	"github.com/aryan0dhankhar/storefront/internal/templates"
	"github.com/aryan0dhankhar/storefront/internal/tenant"
)

var (
	acme = domain.Store{
		ID: "s1", Name: "Acme", DefaultDomain: "acme.example.com",
		Currency: domain.DefaultCurrency(), Active: true,
	}
	closed = domain.Store{
		ID: "s2", Name: "Closed Co", DefaultDomain: "closed.example.com",
		Currency: domain.DefaultCurrency(), Active: false,
	}
)

const layoutSource = `<html><head>{{ content_for_header }}</head><body><header>{{ shop.name }}</header>{{ content_for_layout }}</body></html>`

func baseTheme() map[string]string {
	return map[string]string{
		"layout/theme.liquid":         layoutSource,
		"templates/index.json":        `{"sections": {"hero": {"type": "hero", "settings": {"heading": "Welcome"}}}, "order": ["hero"]}`,
		"templates/product.liquid":    `<h2>{{ product.title }}</h2>`,
		"templates/collection.liquid": `{% for p in collection.products %}[{{ p.title }}]{% endfor %}`,
		"sections/hero.liquid":        `<h1>{{ section.settings.heading }}</h1>`,
		"config/settings_schema.json": `[{"name": "Colors", "settings": [{"id": "accent", "type": "color", "default": "#336699"}]}]`,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ThemeEvent
}

func (n *recordingNotifier) Notify(_ string, ev ThemeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	mem      *storage.FSStore
	loader   *templates.Loader
	render   *RenderService
	themes   *ThemeService
	notifier *recordingNotifier
}

func newHarness(t *testing.T, files map[string]string, opts RenderOptions) *harness {
	t.Helper()
	ctx := context.Background()
	mem := storage.NewMemStore()
	for path, content := range files {
		require.NoError(t, mem.Put(ctx, domain.TemplateKey("s1", path), []byte(content), "text/plain"))
	}

	policy := caching.DefaultPolicy()
	caches := caching.New(policy, nil)
	stores := repository.NewMemoryStoreRepository(acme, closed)
	cat := repository.NewMemoryCatalog()
	cat.AddProducts(domain.ProductRecord{ID: "p1", StoreID: "s1", Title: "Mug", Handle: "mug", Price: 1500, Available: true})
	cat.AddCollection(domain.CollectionRecord{ID: "c1", StoreID: "s1", Title: "Kitchen", Handle: "kitchen"}, "p1")

	loader := templates.NewLoader(mem, caches, templates.Options{Timeout: time.Second}, nil)
	resolver := tenant.NewResolver(stores, caches, nil)
	fetcher := catalog.NewFetcher(catalog.Repositories{
		Products:    cat.Products(),
		Collections: cat.Collections(),
		Pages:       cat.Pages(),
		Navigation:  cat.Navigation(),
		Checkouts:   cat.Checkouts(),
	}, caches, time.Second, nil)
	pages, err := caching.NewPageCache(caches, nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pages.Close() })

	h := &harness{
		mem:      mem,
		loader:   loader,
		render:   NewRenderService(resolver, loader, fetcher, composer.NewComposer(loader, 4, nil), pages, policy, opts, nil),
		themes:   NewThemeService(mem, ingest.NewProcessor(ingest.DefaultOptions(), nil), loader, caches, pages, resolver, stores, nil, nil),
		notifier: &recordingNotifier{},
	}
	h.themes.SetNotifier(h.notifier)
	return h
}

func (h *harness) get(t *testing.T, path string) (*domain.RenderResult, error) {
	t.Helper()
	return h.render.Render(context.Background(), RenderRequest{Host: "acme.example.com", Path: path})
}
