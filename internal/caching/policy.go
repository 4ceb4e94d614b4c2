// Package caching organises the process-wide TTL cache into categories,
// owns the TTL policy per category, and builds route-identity aware
// page-render keys.
package caching

import (
	"time"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/pkg/config"
)

// Policy holds the TTL of every cache category
type Policy struct {
	Template       time.Duration
	Product        time.Duration
	Collection     time.Duration
	PageData       time.Duration
	Navigation     time.Duration
	Domain         time.Duration
	DomainNotFound time.Duration
	DomainError    time.Duration
	Pages          map[domain.PageType]time.Duration
}

// DefaultPolicy returns the built-in TTLs
func DefaultPolicy() Policy {
	return Policy{
		Template:       60 * time.Minute,
		Product:        15 * time.Minute,
		Collection:     30 * time.Minute,
		PageData:       30 * time.Minute,
		Navigation:     30 * time.Minute,
		Domain:         30 * time.Minute,
		DomainNotFound: 5 * time.Minute,
		DomainError:    time.Minute,
		Pages: map[domain.PageType]time.Duration{
			domain.PageIndex:      30 * time.Minute,
			domain.PageProduct:    60 * time.Minute,
			domain.PageCollection: 45 * time.Minute,
			domain.PagePage:       24 * time.Hour,
			domain.PageBlog:       30 * time.Minute,
			domain.PageArticle:    60 * time.Minute,
			domain.PagePolicies:   24 * time.Hour,
			domain.PageNotFound:   24 * time.Hour,
		},
	}
}

// PolicyFromConfig builds the policy from configuration
func PolicyFromConfig(c config.CacheConfig) Policy {
	return Policy{
		Template:       c.TemplateTTL,
		Product:        c.ProductTTL,
		Collection:     c.CollectionTTL,
		PageData:       c.PageDataTTL,
		Navigation:     c.NavigationTTL,
		Domain:         c.DomainTTL,
		DomainNotFound: c.DomainNotFoundTTL,
		DomainError:    c.DomainErrorTTL,
		Pages: map[domain.PageType]time.Duration{
			domain.PageIndex:      c.Pages.Index,
			domain.PageProduct:    c.Pages.Product,
			domain.PageCollection: c.Pages.Collection,
			domain.PagePage:       c.Pages.Page,
			domain.PageBlog:       c.Pages.Blog,
			domain.PageArticle:    c.Pages.Article,
			domain.PageSearch:     c.Pages.Search,
			domain.PagePolicies:   c.Pages.Policies,
			domain.PageNotFound:   c.Pages.NotFound,
			domain.PageCart:       c.Pages.Cart,
			domain.PageCheckout:   c.Pages.Checkout,
		},
	}
}

// PageTTL is the rendered-page TTL for a page type. Cart and every
// checkout page are never cached, whatever the configuration says.
func (p Policy) PageTTL(pt domain.PageType) time.Duration {
	switch pt {
	case domain.PageCart, domain.PageCheckout, domain.PageCheckoutStart, domain.PageCheckoutConfirmation:
		return 0
	}
	return p.Pages[pt]
}

// TTL returns the lifetime of entries in a data category
func (p Policy) TTL(c Category) time.Duration {
	switch c {
	case CategoryTemplateRaw, CategoryTemplateCompiled:
		return p.Template
	case CategoryProduct:
		return p.Product
	case CategoryCollection:
		return p.Collection
	case CategoryPageData:
		return p.PageData
	case CategoryNavigation:
		return p.Navigation
	case CategoryDomain:
		return p.Domain
	}
	return 0
}
