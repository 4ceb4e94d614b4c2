package domain

import "time"

// PageType discriminates which storefront page a request renders
type PageType string

const (
	PageIndex                PageType = "index"
	PageProduct              PageType = "product"
	PageCollection           PageType = "collection"
	PagePage                 PageType = "page"
	PageBlog                 PageType = "blog"
	PageArticle              PageType = "article"
	PageSearch               PageType = "search"
	PageCart                 PageType = "cart"
	PageNotFound             PageType = "404"
	PageCheckout             PageType = "checkout"
	PageCheckoutStart        PageType = "checkout_start"
	PageCheckoutConfirmation PageType = "checkout_confirmation"
	PagePolicies             PageType = "policies"
)

// AllPageTypes lists every page type in a stable order
var AllPageTypes = []PageType{
	PageIndex, PageProduct, PageCollection, PagePage, PageBlog, PageArticle, PageSearch,
	PageCart, PageNotFound, PageCheckout, PageCheckoutStart, PageCheckoutConfirmation, PagePolicies,
}

// Valid reports whether p is a known page type
func (p PageType) Valid() bool {
	for _, t := range AllPageTypes {
		if t == p {
			return true
		}
	}
	return false
}

// TemplateName is the templates/ file stem rendered for this page type
func (p PageType) TemplateName() string {
	switch p {
	case PageCheckoutStart, PageCheckoutConfirmation:
		return "checkout"
	}
	return string(p)
}

// NeedsProduct reports whether the page type renders a single product
func (p PageType) NeedsProduct() bool { return p == PageProduct }

// NeedsCollection reports whether the page type renders a collection
func (p PageType) NeedsCollection() bool { return p == PageCollection }

// PageRenderOptions is derived once per request from the path
type PageRenderOptions struct {
	PageType         PageType
	Handle           string
	ProductID        string
	CollectionID     string
	CollectionHandle string
	SearchTerm       string
	CheckoutToken    string
	// NextToken selects a page of a paginated listing
	NextToken string
	// EditorMode renders Theme Studio attributes and is never cached
	EditorMode bool
}

// RenderResult is the finished output of one page render
type RenderResult struct {
	HTML     string        `msgpack:"html"`
	Metadata Metadata      `msgpack:"metadata"`
	CacheKey string        `msgpack:"cache_key"`
	CacheTTL time.Duration `msgpack:"cache_ttl"`
	// StatusCode is 200 unless the render fell back to an error or 404 page
	StatusCode int `msgpack:"status_code"`
}

// Icon is a favicon or touch icon link
type Icon struct {
	Rel   string `json:"rel" msgpack:"rel"`
	Href  string `json:"href" msgpack:"href"`
	Sizes string `json:"sizes,omitempty" msgpack:"sizes"`
	Type  string `json:"type,omitempty" msgpack:"type"`
}

// Metadata holds the SEO data derived for a page
type Metadata struct {
	Title       string            `json:"title" msgpack:"title"`
	Description string            `json:"description" msgpack:"description"`
	Canonical   string            `json:"canonical,omitempty" msgpack:"canonical"`
	OpenGraph   map[string]string `json:"openGraph" msgpack:"open_graph"`
	Schema      []map[string]any  `json:"schema" msgpack:"schema"`
	Icons       []Icon            `json:"icons" msgpack:"icons"`
	Keywords    []string          `json:"keywords,omitempty" msgpack:"keywords"`
}
