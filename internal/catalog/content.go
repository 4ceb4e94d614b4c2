package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/domain"
)

// ListCollections returns one page of the store's collections
func (f *Fetcher) ListCollections(ctx context.Context, store *domain.Store, opts domain.ListOptions) (domain.Page[Collection], error) {
	key := caching.StoreKey(store.ID, "collections", "all", listKey(opts))
	return cached(ctx, f, caching.CategoryCollection, key, func(ctx context.Context) (domain.Page[Collection], error) {
		page, err := f.repos.Collections.List(ctx, store.ID, opts)
		if err != nil {
			return domain.Page[Collection]{}, fmt.Errorf("failed to list collections: %w", err)
		}
		out := make([]Collection, len(page.Items))
		for i, c := range page.Items {
			out[i] = TransformCollection(c)
		}
		return domain.Page[Collection]{Items: out, NextToken: page.NextToken}, nil
	})
}

// GetCollection returns a collection by id, or nil when it does not exist
func (f *Fetcher) GetCollection(ctx context.Context, store *domain.Store, id string) (*Collection, error) {
	key := caching.StoreKey(store.ID, "collections", "id", id)
	return cached(ctx, f, caching.CategoryCollection, key, func(ctx context.Context) (*Collection, error) {
		rec, err := notFound(f.repos.Collections.GetByID(ctx, store.ID, id))
		if err != nil || rec == nil {
			return nil, wrap("get collection", err)
		}
		c := TransformCollection(*rec)
		return &c, nil
	})
}

// GetCollectionByHandle returns a collection by handle, or nil when it does not exist
func (f *Fetcher) GetCollectionByHandle(ctx context.Context, store *domain.Store, handle string) (*Collection, error) {
	key := caching.StoreKey(store.ID, "collections", "handle", handle)
	return cached(ctx, f, caching.CategoryCollection, key, func(ctx context.Context) (*Collection, error) {
		rec, err := notFound(f.repos.Collections.GetByHandle(ctx, store.ID, handle))
		if err != nil || rec == nil {
			return nil, wrap("get collection", err)
		}
		c := TransformCollection(*rec)
		return &c, nil
	})
}

// ListPages returns one page of the store's content pages
func (f *Fetcher) ListPages(ctx context.Context, store *domain.Store, opts domain.ListOptions) (domain.Page[Page], error) {
	key := caching.StoreKey(store.ID, "pages", "all", listKey(opts))
	return cached(ctx, f, caching.CategoryPageData, key, func(ctx context.Context) (domain.Page[Page], error) {
		page, err := f.repos.Pages.List(ctx, store.ID, opts)
		if err != nil {
			return domain.Page[Page]{}, fmt.Errorf("failed to list pages: %w", err)
		}
		out := make([]Page, len(page.Items))
		for i, p := range page.Items {
			out[i] = TransformPage(p)
		}
		return domain.Page[Page]{Items: out, NextToken: page.NextToken}, nil
	})
}

// GetPage returns a content page by id, or nil when it does not exist
func (f *Fetcher) GetPage(ctx context.Context, store *domain.Store, id string) (*Page, error) {
	key := caching.StoreKey(store.ID, "pages", "id", id)
	return cached(ctx, f, caching.CategoryPageData, key, func(ctx context.Context) (*Page, error) {
		rec, err := notFound(f.repos.Pages.GetByID(ctx, store.ID, id))
		if err != nil || rec == nil {
			return nil, wrap("get page", err)
		}
		p := TransformPage(*rec)
		return &p, nil
	})
}

// GetPageByHandle returns a content page by handle, or nil when it does not exist
func (f *Fetcher) GetPageByHandle(ctx context.Context, store *domain.Store, handle string) (*Page, error) {
	key := caching.StoreKey(store.ID, "pages", "handle", handle)
	return cached(ctx, f, caching.CategoryPageData, key, func(ctx context.Context) (*Page, error) {
		rec, err := notFound(f.repos.Pages.GetByHandle(ctx, store.ID, handle))
		if err != nil || rec == nil {
			return nil, wrap("get page", err)
		}
		p := TransformPage(*rec)
		return &p, nil
	})
}

// Navigation returns every menu of the store
func (f *Fetcher) Navigation(ctx context.Context, store *domain.Store) ([]Menu, error) {
	key := caching.StoreKey(store.ID, "menus")
	return cached(ctx, f, caching.CategoryNavigation, key, func(ctx context.Context) ([]Menu, error) {
		recs, err := f.repos.Navigation.List(ctx, store.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list menus: %w", err)
		}
		out := make([]Menu, len(recs))
		for i, r := range recs {
			out[i] = TransformMenu(r)
		}
		return out, nil
	})
}

// GetMenu returns one menu by id, or nil when it does not exist
func (f *Fetcher) GetMenu(ctx context.Context, store *domain.Store, id string) (*Menu, error) {
	key := caching.StoreKey(store.ID, "menus", id)
	return cached(ctx, f, caching.CategoryNavigation, key, func(ctx context.Context) (*Menu, error) {
		rec, err := notFound(f.repos.Navigation.GetByID(ctx, store.ID, id))
		if err != nil || rec == nil {
			return nil, wrap("get menu", err)
		}
		m := TransformMenu(*rec)
		return &m, nil
	})
}

// Checkout returns the session for token when it may be shown, nil
// otherwise. Sessions are never cached and lookup failures never surface:
// the caller picks the fallback page.
func (f *Fetcher) Checkout(ctx context.Context, store *domain.Store, token string, confirmation bool) *Checkout {
	if token == "" || f.repos.Checkouts == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	s, err := notFound(f.repos.Checkouts.GetByToken(ctx, store.ID, token))
	if err != nil {
		f.logger.Warn("checkout lookup failed",
			slog.String("store_id", store.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !ValidCheckout(s, confirmation, f.now()) {
		return nil
	}
	c := TransformCheckout(*s, store.Currency)
	return &c
}
