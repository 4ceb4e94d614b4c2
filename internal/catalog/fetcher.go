// Package catalog fetches store data for rendering. Every result is
// transformed into its render-ready form and cached under a store-scoped key.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/observability/metrics"
)

// Repositories are the catalog backends a Fetcher reads
type Repositories struct {
	Products    domain.ProductRepository
	Collections domain.CollectionRepository
	Pages       domain.PageRepository
	Navigation  domain.NavigationRepository
	Checkouts   domain.CheckoutRepository
}

// Fetcher loads and caches catalog data
type Fetcher struct {
	repos   Repositories
	caches  *caching.Caches
	timeout time.Duration
	flight  singleflight.Group
	logger  *slog.Logger
	now     func() time.Time
}

// NewFetcher creates a fetcher. timeout bounds every backend query.
func NewFetcher(repos Repositories, caches *caching.Caches, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fetcher{
		repos:   repos,
		caches:  caches,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// cached returns the value under key in category, loading and storing it
// on a miss. Concurrent misses for the same key share one load; the load
// runs under its own timeout so an abandoned caller cannot cancel it.
func cached[T any](ctx context.Context, f *Fetcher, cat caching.Category, key string, load func(context.Context) (T, error)) (T, error) {
	store := f.caches.Store(cat)
	if v, ok := store.Get(key); ok {
		if t, ok := v.(T); ok {
			metrics.ObserveCache(string(cat), true)
			return t, nil
		}
	}
	metrics.ObserveCache(string(cat), false)

	ch := f.flight.DoChan(string(cat)+"|"+key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return v, err
		}
		store.Set(key, v, f.caches.Policy().TTL(cat))
		return v, nil
	})
	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func listKey(opts domain.ListOptions) string {
	return strconv.Itoa(opts.Limit) + ":" + opts.NextToken
}

// notFound maps a repository miss to a nil result
func notFound[T any](v *T, err error) (*T, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func transformProducts(recs []domain.ProductRecord, currency domain.CurrencyConfig, collectionHandle string) []Product {
	out := make([]Product, len(recs))
	for i, r := range recs {
		out[i] = TransformProduct(r, currency, collectionHandle)
	}
	return out
}

// ListProducts returns one page of the store's products
func (f *Fetcher) ListProducts(ctx context.Context, store *domain.Store, opts domain.ListOptions) (domain.Page[Product], error) {
	key := caching.StoreKey(store.ID, "products", "all", listKey(opts))
	return cached(ctx, f, caching.CategoryProduct, key, func(ctx context.Context) (domain.Page[Product], error) {
		page, err := f.repos.Products.List(ctx, store.ID, opts)
		if err != nil {
			return domain.Page[Product]{}, fmt.Errorf("failed to list products: %w", err)
		}
		return domain.Page[Product]{Items: transformProducts(page.Items, store.Currency, ""), NextToken: page.NextToken}, nil
	})
}

// ListCollectionProducts returns one page of a collection's products with
// URLs nested under the collection
func (f *Fetcher) ListCollectionProducts(ctx context.Context, store *domain.Store, col *Collection, opts domain.ListOptions) (domain.Page[Product], error) {
	key := caching.StoreKey(store.ID, "products", "collection", col.ID, listKey(opts))
	return cached(ctx, f, caching.CategoryProduct, key, func(ctx context.Context) (domain.Page[Product], error) {
		page, err := f.repos.Products.ListByCollection(ctx, store.ID, col.ID, opts)
		if err != nil {
			return domain.Page[Product]{}, fmt.Errorf("failed to list collection products: %w", err)
		}
		return domain.Page[Product]{Items: transformProducts(page.Items, store.Currency, col.Handle), NextToken: page.NextToken}, nil
	})
}

// SearchProducts returns one page of products matching term. An empty
// term matches nothing.
func (f *Fetcher) SearchProducts(ctx context.Context, store *domain.Store, term string, opts domain.ListOptions) (domain.Page[Product], error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return domain.Page[Product]{Items: []Product{}}, nil
	}
	key := caching.StoreKey(store.ID, "products", "search", strings.ToLower(term), listKey(opts))
	return cached(ctx, f, caching.CategoryProduct, key, func(ctx context.Context) (domain.Page[Product], error) {
		page, err := f.repos.Products.Search(ctx, store.ID, term, opts)
		if err != nil {
			return domain.Page[Product]{}, fmt.Errorf("failed to search products: %w", err)
		}
		return domain.Page[Product]{Items: transformProducts(page.Items, store.Currency, ""), NextToken: page.NextToken}, nil
	})
}

// GetProduct returns a product by id, or nil when it does not exist
func (f *Fetcher) GetProduct(ctx context.Context, store *domain.Store, id, collectionHandle string) (*Product, error) {
	key := caching.StoreKey(store.ID, "products", "id", id, collectionHandle)
	return cached(ctx, f, caching.CategoryProduct, key, func(ctx context.Context) (*Product, error) {
		rec, err := notFound(f.repos.Products.GetByID(ctx, store.ID, id))
		if err != nil || rec == nil {
			return nil, wrap("get product", err)
		}
		p := TransformProduct(*rec, store.Currency, collectionHandle)
		return &p, nil
	})
}

// GetProductByHandle returns a product by handle, or nil when it does not exist
func (f *Fetcher) GetProductByHandle(ctx context.Context, store *domain.Store, handle, collectionHandle string) (*Product, error) {
	key := caching.StoreKey(store.ID, "products", "handle", handle, collectionHandle)
	return cached(ctx, f, caching.CategoryProduct, key, func(ctx context.Context) (*Product, error) {
		rec, err := notFound(f.repos.Products.GetByHandle(ctx, store.ID, handle))
		if err != nil || rec == nil {
			return nil, wrap("get product", err)
		}
		p := TransformProduct(*rec, store.Currency, collectionHandle)
		return &p, nil
	})
}

// RelatedProducts ranks other products by shared type, vendor and tags.
// Failures are logged and yield an empty list.
func (f *Fetcher) RelatedProducts(ctx context.Context, store *domain.Store, p *Product, limit int) []Product {
	if p == nil || limit <= 0 {
		return []Product{}
	}
	page, err := f.ListProducts(ctx, store, domain.ListOptions{Limit: 50})
	if err != nil {
		f.logger.Warn("related products unavailable",
			slog.String("store_id", store.ID),
			slog.String("product_id", p.ID),
			slog.String("error", err.Error()),
		)
		return []Product{}
	}
	tags := make(map[string]bool, len(p.Tags))
	for _, t := range p.Tags {
		tags[strings.ToLower(t)] = true
	}
	type scored struct {
		p     Product
		score int
	}
	var candidates []scored
	for _, c := range page.Items {
		if c.ID == p.ID {
			continue
		}
		s := 0
		if p.Type != "" && c.Type == p.Type {
			s += 2
		}
		if p.Vendor != "" && c.Vendor == p.Vendor {
			s++
		}
		for _, t := range c.Tags {
			if tags[strings.ToLower(t)] {
				s++
			}
		}
		if s > 0 {
			candidates = append(candidates, scored{c, s})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	out := make([]Product, 0, limit)
	for _, c := range candidates {
		if len(out) == limit {
			break
		}
		out = append(out, c.p)
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
