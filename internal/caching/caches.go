package caching

import (
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/pkg/cache"
)

// Category names one logical cache
type Category string

const (
	CategoryTemplateRaw      Category = "template_raw"
	CategoryTemplateCompiled Category = "template_compiled"
	CategoryDomain           Category = "domain"
	CategoryProduct          Category = "product"
	CategoryCollection       Category = "collection"
	CategoryPageData         Category = "page_data"
	CategoryNavigation       Category = "navigation"
	CategoryPageRender       Category = "page_render"
)

// Categories lists every category in a stable order
func Categories() []Category {
	return []Category{
		CategoryTemplateRaw, CategoryTemplateCompiled, CategoryDomain, CategoryProduct,
		CategoryCollection, CategoryPageData, CategoryNavigation, CategoryPageRender,
	}
}

// Caches owns one TTL store per category. Template categories are keyed by
// storage key (templates/{storeID}/...); every other store-scoped category
// is keyed "{storeID}/...". The domain category is keyed by host.
type Caches struct {
	stores map[Category]*cache.Cache
	policy Policy
	logger *slog.Logger
}

// New creates the category stores. opts apply to every store.
func New(policy Policy, logger *slog.Logger, opts ...cache.Option) *Caches {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Caches{stores: map[Category]*cache.Cache{}, policy: policy, logger: logger}
	for _, cat := range Categories() {
		c.stores[cat] = cache.New(opts...)
	}
	return c
}

// Store returns the raw store of a category
func (c *Caches) Store(cat Category) *cache.Cache {
	return c.stores[cat]
}

// Policy returns the TTL policy
func (c *Caches) Policy() Policy {
	return c.policy
}

// StoreKey namespaces a data key under a store
func StoreKey(storeID string, parts ...string) string {
	return storeID + "/" + strings.Join(parts, "/")
}

// TemplateKey is the storage and cache key of a theme file
func TemplateKey(storeID, path string) string {
	return domain.TemplateKey(storeID, path)
}

// InvalidateStore drops every derived entry of a store: raw and compiled
// templates by storage prefix, and data and rendered pages by store prefix.
// Each category is cleared under its own lock, so a reader sees any single
// key either present or gone.
func (c *Caches) InvalidateStore(storeID string) int {
	if storeID == "" {
		return 0
	}
	removed := 0
	for _, cat := range Categories() {
		switch cat {
		case CategoryDomain:
			continue
		case CategoryTemplateRaw, CategoryTemplateCompiled:
			removed += c.stores[cat].DeleteByPrefix(domain.TemplatePrefix(storeID))
		default:
			removed += c.stores[cat].DeleteByPrefix(storeID + "/")
		}
	}
	c.logger.Info("store caches invalidated",
		slog.String("store_id", storeID),
		slog.Int("entries", removed),
	)
	return removed
}

// Stats reports entry counts per category
func (c *Caches) Stats() map[Category]cache.Stats {
	out := make(map[Category]cache.Stats, len(c.stores))
	for cat, s := range c.stores {
		out[cat] = s.Stats()
	}
	return out
}

// CleanExpired sweeps every category and returns evictions per category
func (c *Caches) CleanExpired() map[Category]int {
	out := make(map[Category]int, len(c.stores))
	for cat, s := range c.stores {
		out[cat] = s.CleanExpired()
	}
	return out
}
