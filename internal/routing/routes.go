// Package routing maps storefront paths to page render options
package routing

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

// route is one matcher. build receives the path captures.
type route struct {
	name    string
	pattern *regexp.Regexp
	build   func(m []string) domain.PageRenderOptions
}

const segment = `([^/]+)`

func page(pt domain.PageType) func([]string) domain.PageRenderOptions {
	return func([]string) domain.PageRenderOptions { return domain.PageRenderOptions{PageType: pt} }
}

// routes are tried in order; the first match wins
var routes = []route{
	{"index", regexp.MustCompile(`^/$`), page(domain.PageIndex)},
	{"collection_product", regexp.MustCompile(`^/collections/` + segment + `/products/` + segment + `$`),
		func(m []string) domain.PageRenderOptions {
			return domain.PageRenderOptions{PageType: domain.PageProduct, CollectionHandle: m[1], Handle: m[2]}
		}},
	{"product", regexp.MustCompile(`^/products/` + segment + `$`),
		func(m []string) domain.PageRenderOptions {
			return domain.PageRenderOptions{PageType: domain.PageProduct, Handle: m[1]}
		}},
	{"collection", regexp.MustCompile(`^/collections/` + segment + `$`),
		func(m []string) domain.PageRenderOptions {
			return domain.PageRenderOptions{PageType: domain.PageCollection, Handle: m[1]}
		}},
	{"policies", regexp.MustCompile(`^/policies(?:/` + segment + `)?$`),
		func(m []string) domain.PageRenderOptions {
			return domain.PageRenderOptions{PageType: domain.PagePolicies, Handle: m[1]}
		}},
	{"page", regexp.MustCompile(`^/pages/` + segment + `$`),
		func(m []string) domain.PageRenderOptions {
			return domain.PageRenderOptions{PageType: domain.PagePage, Handle: m[1]}
		}},
	{"article", regexp.MustCompile(`^/blogs/` + segment + `/` + segment + `$`),
		func(m []string) domain.PageRenderOptions {
			return domain.PageRenderOptions{PageType: domain.PageArticle, CollectionHandle: m[1], Handle: m[2]}
		}},
	{"blog", regexp.MustCompile(`^/blogs/` + segment + `$`),
		func(m []string) domain.PageRenderOptions {
			return domain.PageRenderOptions{PageType: domain.PageBlog, Handle: m[1]}
		}},
	{"search", regexp.MustCompile(`^/search$`), page(domain.PageSearch)},
	{"cart", regexp.MustCompile(`^/cart$`), page(domain.PageCart)},
	{"404", regexp.MustCompile(`^/404$`), page(domain.PageNotFound)},
	{"checkout_start", regexp.MustCompile(`^/checkouts/start$`), page(domain.PageCheckoutStart)},
	{"checkout_confirmation", regexp.MustCompile(`^/checkouts/cn/` + segment + `/confirmation$`),
		func(m []string) domain.PageRenderOptions {
			return domain.PageRenderOptions{PageType: domain.PageCheckoutConfirmation, CheckoutToken: m[1]}
		}},
	{"checkout", regexp.MustCompile(`^/checkouts/cn/` + segment + `$`),
		func(m []string) domain.PageRenderOptions {
			return domain.PageRenderOptions{PageType: domain.PageCheckout, CheckoutToken: m[1]}
		}},
}

// Normalize cleans a request path: one leading slash, no trailing slash,
// no repeated slashes
func Normalize(path string) string {
	parts := strings.Split(path, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return "/" + strings.Join(kept, "/")
}

// Match derives the render options for a path and query. Unmatched paths
// render the 404 page. The q parameter is the search term and token
// selects a page of a paginated listing.
func Match(path string, query url.Values) domain.PageRenderOptions {
	opts, _ := MatchRoute(path, query)
	return opts
}

// MatchRoute is Match that also names the route that matched, "" when
// none did
func MatchRoute(path string, query url.Values) (domain.PageRenderOptions, string) {
	clean := Normalize(path)
	opts := domain.PageRenderOptions{PageType: domain.PageNotFound}
	name := ""
	for _, r := range routes {
		m := r.pattern.FindStringSubmatch(clean)
		if m == nil {
			continue
		}
		for i := 1; i < len(m); i++ {
			if s, err := url.PathUnescape(m[i]); err == nil {
				m[i] = s
			}
		}
		opts = r.build(m)
		name = r.name
		break
	}
	if opts.PageType == domain.PageSearch {
		opts.SearchTerm = strings.TrimSpace(query.Get("q"))
	}
	opts.NextToken = query.Get("token")
	return opts, name
}
