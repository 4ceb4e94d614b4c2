package service

import (
	"context"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/catalog"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
)

// allHandle is the collection listing every product of the store
const allHandle = "all"

const indexCollectionLimit = 20

// loadPageData fetches the entity and listings a page type renders. The
// returned options carry the resolved product or collection id, which is
// part of the page's cache identity.
func (s *RenderService) loadPageData(ctx context.Context, store *domain.Store, opts domain.PageRenderOptions, query url.Values) (PageData, domain.PageRenderOptions) {
	data := PageData{Pagination: s.pageInfo(query, "")}
	list := domain.ListOptions{Limit: s.opts.PageSize, NextToken: opts.NextToken}

	switch opts.PageType {
	case domain.PageIndex:
		var g errgroup.Group
		g.Go(func() error {
			page, err := s.fetcher.ListProducts(ctx, store, domain.ListOptions{Limit: s.opts.FeaturedLimit})
			if err != nil {
				s.warn(store, opts.PageType, "featured products unavailable", err)
				return nil
			}
			data.Products = page.Items
			return nil
		})
		g.Go(func() error {
			page, err := s.fetcher.ListCollections(ctx, store, domain.ListOptions{Limit: indexCollectionLimit})
			if err != nil {
				s.warn(store, opts.PageType, "collections unavailable", err)
				return nil
			}
			data.Collections = page.Items
			return nil
		})
		_ = g.Wait()

	case domain.PageProduct:
		p, err := s.fetcher.GetProductByHandle(ctx, store, opts.Handle, opts.CollectionHandle)
		if err != nil {
			s.warn(store, opts.PageType, "product unavailable", err)
		}
		if p == nil {
			data.Missing = true
			break
		}
		opts.ProductID = p.ID
		data.Product = p
		data.Related = s.fetcher.RelatedProducts(ctx, store, p, s.opts.RelatedLimit)

	case domain.PageCollection:
		col, err := s.collection(ctx, store, opts.Handle)
		if err != nil {
			s.warn(store, opts.PageType, "collection unavailable", err)
		}
		if col == nil {
			data.Missing = true
			break
		}
		opts.CollectionID = col.ID
		data.Collection = col
		var page domain.Page[catalog.Product]
		if col.Handle == allHandle {
			page, err = s.fetcher.ListProducts(ctx, store, list)
		} else {
			page, err = s.fetcher.ListCollectionProducts(ctx, store, col, list)
		}
		if err != nil {
			s.warn(store, opts.PageType, "collection products unavailable", err)
		}
		data.Products = page.Items
		data.Pagination = s.pageInfo(query, page.NextToken)

	case domain.PageSearch:
		page, err := s.fetcher.SearchProducts(ctx, store, opts.SearchTerm, list)
		if err != nil {
			s.warn(store, opts.PageType, "search unavailable", err)
		}
		data.Products = page.Items
		data.Pagination = s.pageInfo(query, page.NextToken)

	case domain.PagePage:
		p, err := s.fetcher.GetPageByHandle(ctx, store, opts.Handle)
		if err != nil {
			s.warn(store, opts.PageType, "page unavailable", err)
		}
		if p == nil {
			data.Missing = true
			break
		}
		data.Page = p

	case domain.PagePolicies:
		if opts.Handle == "" {
			break
		}
		p, err := s.fetcher.GetPageByHandle(ctx, store, opts.Handle)
		if err != nil {
			s.warn(store, opts.PageType, "policy unavailable", err)
		}
		data.Page = p

	case domain.PageCheckout, domain.PageCheckoutConfirmation:
		c := s.fetcher.Checkout(ctx, store, opts.CheckoutToken, opts.PageType == domain.PageCheckoutConfirmation)
		if c == nil {
			data.Missing = true
			break
		}
		data.Checkout = c
	}
	return data, opts
}

// collection resolves a handle, with "all" standing for the whole catalog
func (s *RenderService) collection(ctx context.Context, store *domain.Store, handle string) (*catalog.Collection, error) {
	if handle == allHandle {
		return &catalog.Collection{
			ID:     allHandle,
			Handle: allHandle,
			Title:  "All products",
			URL:    catalog.CollectionURL(allHandle),
		}, nil
	}
	return s.fetcher.GetCollectionByHandle(ctx, store, handle)
}

// pageInfo describes the fetched page of a listing. The page number is
// informational; the token alone selects the page. Without a token the
// first page was fetched whatever the page parameter says.
func (s *RenderService) pageInfo(query url.Values, next string) liquid.PageInfo {
	token := query.Get("token")
	current := 1
	if n, err := strconv.Atoi(query.Get("page")); err == nil && n > 1 && token != "" {
		current = n
	}
	previous := ""
	if current > 2 {
		previous = query.Get("previous")
	}
	return liquid.PageInfo{
		CurrentPage:   current,
		PageSize:      s.opts.PageSize,
		Token:         token,
		NextToken:     next,
		PreviousToken: previous,
		Params:        caching.RenderQuery(query),
		Total:         -1,
	}
}
