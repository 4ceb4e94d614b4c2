package composer

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/pkg/textutil"
)

const maxDescription = 160

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
	titler  = cases.Title(language.English)
)

// plainText strips markup and collapses whitespace
func plainText(s string) string {
	s = html.UnescapeString(tagRe.ReplaceAllString(s, " "))
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// truncateWords cuts s to at most n bytes on a word boundary
func truncateWords(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := textutil.Clip(s, n)
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}

func withShop(title string, s *domain.Store) string {
	if s.Name == "" || title == s.Name {
		return title
	}
	return title + " | " + s.Name
}

func pageTitle(rc *RenderContext) string {
	s := rc.Store
	switch rc.Options.PageType {
	case domain.PageIndex:
		return s.Name
	case domain.PageProduct:
		if rc.Product != nil {
			return withShop(rc.Product.Title, s)
		}
	case domain.PageCollection:
		if rc.Collection != nil {
			return withShop(rc.Collection.Title, s)
		}
	case domain.PagePage:
		if rc.Page != nil {
			if rc.Page.SEOTitle != "" {
				return rc.Page.SEOTitle
			}
			return withShop(rc.Page.Title, s)
		}
	case domain.PageSearch:
		if rc.Options.SearchTerm != "" {
			return withShop(fmt.Sprintf("Search: %q", rc.Options.SearchTerm), s)
		}
		return withShop("Search", s)
	case domain.PageCart:
		return withShop("Your cart", s)
	case domain.PageCheckout, domain.PageCheckoutStart:
		return withShop("Checkout", s)
	case domain.PageCheckoutConfirmation:
		return withShop("Order confirmed", s)
	case domain.PageBlog, domain.PageArticle:
		if rc.Options.Handle != "" {
			return withShop(titler.String(textutil.Humanize(rc.Options.Handle)), s)
		}
		return withShop("Blog", s)
	case domain.PagePolicies:
		return withShop("Policies", s)
	}
	return withShop("Page not found", s)
}

func pageDescription(rc *RenderContext) string {
	var d string
	switch rc.Options.PageType {
	case domain.PageProduct:
		if rc.Product != nil {
			d = rc.Product.Description
		}
	case domain.PageCollection:
		if rc.Collection != nil {
			d = rc.Collection.Description
		}
	case domain.PagePage:
		if rc.Page != nil {
			d = rc.Page.SEODescription
			if d == "" {
				d = rc.Page.Content
			}
		}
	}
	d = plainText(d)
	if d == "" {
		d = plainText(rc.Store.Description)
	}
	return truncateWords(d, maxDescription)
}

// canonicalPath drops the collection context of nested product URLs
func (rc *RenderContext) canonicalPath() string {
	switch {
	case rc.Product != nil:
		return "/products/" + rc.Product.Handle
	case rc.Collection != nil:
		return rc.Collection.URL
	case rc.Page != nil:
		return rc.Page.URL
	}
	if rc.Path == "" {
		return "/"
	}
	return rc.Path
}

func canonicalURL(s *domain.Store, path string) string {
	d := s.PrimaryDomain()
	if d == "" {
		return path
	}
	return "https://" + d + path
}

// GenerateMetadata derives the SEO metadata of a rendered page
func GenerateMetadata(rc *RenderContext) domain.Metadata {
	s := rc.Store
	canonical := canonicalURL(s, rc.canonicalPath())
	md := domain.Metadata{
		Title:       pageTitle(rc),
		Description: pageDescription(rc),
		Canonical:   canonical,
		OpenGraph:   map[string]string{},
		Icons:       icons(rc.Settings),
	}

	og := md.OpenGraph
	og["og:site_name"] = s.Name
	og["og:title"] = md.Title
	og["og:description"] = md.Description
	og["og:url"] = canonical
	og["og:type"] = "website"
	if s.LogoURL != "" {
		og["og:image"] = s.LogoURL
	}
	og["twitter:card"] = "summary_large_image"
	og["twitter:title"] = md.Title
	og["twitter:description"] = md.Description

	md.Schema = append(md.Schema, organizationSchema(s))
	switch {
	case rc.Product != nil:
		p := rc.Product
		og["og:type"] = "product"
		og["og:title"] = p.Title
		og["product:price:amount"] = amount(p.Price, s.Currency)
		og["product:price:currency"] = s.Currency.Code
		if img, ok := p.FeaturedImage(); ok {
			og["og:image"] = absolute(s, img.Src)
		}
		md.Keywords = productKeywords(p.Type, p.Vendor, p.Tags)
		md.Schema = append(md.Schema, productSchema(rc, canonical), breadcrumbs(s,
			crumb{"Home", "/"}, crumb{"Products", "/collections/all"}, crumb{p.Title, rc.canonicalPath()}))
	case rc.Collection != nil:
		c := rc.Collection
		if c.Image != "" {
			og["og:image"] = absolute(s, c.Image)
		}
		md.Keywords = []string{c.Title}
		md.Schema = append(md.Schema, map[string]any{
			"@context": "https://schema.org", "@type": "CollectionPage",
			"name": c.Title, "description": md.Description, "url": canonical,
		}, breadcrumbs(s, crumb{"Home", "/"}, crumb{c.Title, c.URL}))
	case rc.Options.PageType == domain.PageIndex:
		md.Schema = append(md.Schema, websiteSchema(s))
	case rc.Page != nil:
		og["og:type"] = "article"
		md.Schema = append(md.Schema, map[string]any{
			"@context": "https://schema.org", "@type": "WebPage",
			"name": rc.Page.Title, "description": md.Description, "url": canonical,
		})
	}
	if og["og:image"] != "" {
		og["twitter:image"] = og["og:image"]
	}
	return md
}

// amount renders minor units as a plain decimal, the form price
// meta tags and offers expect
func amount(cents int64, c domain.CurrencyConfig) string {
	dp := c.DecimalPlaces
	if dp < 0 {
		dp = 2
	}
	return strconv.FormatFloat(float64(cents)/math.Pow10(dp), 'f', dp, 64)
}

func absolute(s *domain.Store, src string) string {
	switch {
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	case strings.HasPrefix(src, "/"):
		return canonicalURL(s, src)
	}
	return src
}

func productKeywords(kind, vendor string, tags []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range append([]string{kind, vendor}, tags...) {
		k = strings.TrimSpace(k)
		lk := strings.ToLower(k)
		if k == "" || seen[lk] {
			continue
		}
		seen[lk] = true
		out = append(out, k)
	}
	return out
}

func icons(settings map[string]any) []domain.Icon {
	favicon, _ := settings["favicon"].(string)
	if favicon == "" {
		favicon = "/favicon.ico"
	}
	out := []domain.Icon{{Rel: "icon", Href: favicon}}
	if touch, _ := settings["apple_touch_icon"].(string); touch != "" {
		out = append(out, domain.Icon{Rel: "apple-touch-icon", Href: touch, Sizes: "180x180"})
	}
	return out
}

func organizationSchema(s *domain.Store) map[string]any {
	org := map[string]any{
		"@context": "https://schema.org", "@type": "Organization",
		"name": s.Name, "url": canonicalURL(s, "/"),
	}
	if s.LogoURL != "" {
		org["logo"] = s.LogoURL
	}
	if s.Email != "" {
		org["email"] = s.Email
	}
	return org
}

func websiteSchema(s *domain.Store) map[string]any {
	return map[string]any{
		"@context": "https://schema.org", "@type": "WebSite",
		"name": s.Name, "url": canonicalURL(s, "/"),
		"potentialAction": map[string]any{
			"@type":       "SearchAction",
			"target":      canonicalURL(s, "/search?q={search_term_string}"),
			"query-input": "required name=search_term_string",
		},
	}
}

func productSchema(rc *RenderContext, canonical string) map[string]any {
	p := rc.Product
	s := rc.Store
	availability := "https://schema.org/OutOfStock"
	if p.Available {
		availability = "https://schema.org/InStock"
	}
	var images []string
	for _, img := range p.Images {
		images = append(images, absolute(s, img.Src))
	}
	offers := make([]map[string]any, 0, len(p.Variants))
	for _, v := range p.Variants {
		a := "https://schema.org/OutOfStock"
		if v.Available {
			a = "https://schema.org/InStock"
		}
		offers = append(offers, map[string]any{
			"@type": "Offer", "sku": v.SKU, "name": v.Title,
			"price":         amount(v.Price, s.Currency),
			"priceCurrency": s.Currency.Code,
			"availability":  a,
			"url":           canonical,
		})
	}
	if len(offers) == 0 {
		offers = append(offers, map[string]any{
			"@type":         "Offer",
			"price":         amount(p.Price, s.Currency),
			"priceCurrency": s.Currency.Code,
			"availability":  availability,
			"url":           canonical,
		})
	}
	out := map[string]any{
		"@context": "https://schema.org", "@type": "Product",
		"name": p.Title, "description": plainText(p.Description), "url": canonical,
		"offers": offers,
	}
	if len(images) > 0 {
		out["image"] = images
	}
	if p.Vendor != "" {
		out["brand"] = map[string]any{"@type": "Brand", "name": p.Vendor}
	}
	return out
}

type crumb struct{ name, path string }

func breadcrumbs(s *domain.Store, crumbs ...crumb) map[string]any {
	items := make([]map[string]any, len(crumbs))
	for i, c := range crumbs {
		items[i] = map[string]any{
			"@type": "ListItem", "position": i + 1, "name": c.name, "item": canonicalURL(s, c.path),
		}
	}
	return map[string]any{"@context": "https://schema.org", "@type": "BreadcrumbList", "itemListElement": items}
}
