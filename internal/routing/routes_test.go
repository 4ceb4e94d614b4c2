package routing

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		path string
		want domain.PageRenderOptions
	}{
		{"/", domain.PageRenderOptions{PageType: domain.PageIndex}},
		{"", domain.PageRenderOptions{PageType: domain.PageIndex}},
		{"/products/red-shoes", domain.PageRenderOptions{PageType: domain.PageProduct, Handle: "red-shoes"}},
		{"/products/red-shoes/", domain.PageRenderOptions{PageType: domain.PageProduct, Handle: "red-shoes"}},
		{"/collections/summer/products/red-shoes", domain.PageRenderOptions{PageType: domain.PageProduct, Handle: "red-shoes", CollectionHandle: "summer"}},
		{"/collections/summer", domain.PageRenderOptions{PageType: domain.PageCollection, Handle: "summer"}},
		{"/policies", domain.PageRenderOptions{PageType: domain.PagePolicies}},
		{"/policies/refund-policy", domain.PageRenderOptions{PageType: domain.PagePolicies, Handle: "refund-policy"}},
		{"/pages/about-us", domain.PageRenderOptions{PageType: domain.PagePage, Handle: "about-us"}},
		{"/blogs/news", domain.PageRenderOptions{PageType: domain.PageBlog, Handle: "news"}},
		{"/blogs/news/launch", domain.PageRenderOptions{PageType: domain.PageArticle, Handle: "launch", CollectionHandle: "news"}},
		{"/cart", domain.PageRenderOptions{PageType: domain.PageCart}},
		{"/404", domain.PageRenderOptions{PageType: domain.PageNotFound}},
		{"/checkouts/start", domain.PageRenderOptions{PageType: domain.PageCheckoutStart}},
		{"/checkouts/cn/tok123/confirmation", domain.PageRenderOptions{PageType: domain.PageCheckoutConfirmation, CheckoutToken: "tok123"}},
		{"/checkouts/cn/tok123", domain.PageRenderOptions{PageType: domain.PageCheckout, CheckoutToken: "tok123"}},
		{"/unknown/path", domain.PageRenderOptions{PageType: domain.PageNotFound}},
		{"/products", domain.PageRenderOptions{PageType: domain.PageNotFound}},
		{"/products/a/b", domain.PageRenderOptions{PageType: domain.PageNotFound}},
		{"/pages/caf%C3%A9", domain.PageRenderOptions{PageType: domain.PagePage, Handle: "café"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.path, nil))
		})
	}
}

func TestMatchQuery(t *testing.T) {
	opts := Match("/search", url.Values{"q": {"  boots "}, "token": {"abc"}})
	assert.Equal(t, domain.PageSearch, opts.PageType)
	assert.Equal(t, "boots", opts.SearchTerm)
	assert.Equal(t, "abc", opts.NextToken)

	opts = Match("/collections/all", url.Values{"q": {"ignored"}})
	assert.Empty(t, opts.SearchTerm)
}

func TestMatchRouteNamesTheMatch(t *testing.T) {
	_, name := MatchRoute("/collections/a/products/b", nil)
	assert.Equal(t, "collection_product", name)
	_, name = MatchRoute("/nowhere", nil)
	assert.Empty(t, name)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "/", Normalize("//"))
	assert.Equal(t, "/a/b", Normalize("a//b/"))
}
