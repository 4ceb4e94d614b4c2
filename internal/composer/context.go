// Package composer assembles what a page render sees: the root Liquid
// context, pre-rendered sections and the page's SEO metadata.
package composer

import (
	"encoding/json"
	"net/url"
	"sort"

	"github.com/aryan0dhankhar/storefront/internal/catalog"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
)

// Cart is the visitor's cart. Carts live client side, so the server
// usually renders an empty one.
type Cart struct {
	Items    []catalog.LineItem
	Note     string
	Currency string
}

// ToLiquid exposes the cart to templates
func (c Cart) ToLiquid() map[string]any {
	items := make([]any, len(c.Items))
	count := 0
	var total int64
	for i, li := range c.Items {
		items[i] = map[string]any{
			"title": li.Title, "variant_title": li.VariantTitle, "quantity": li.Quantity,
			"price": li.Price, "line_price": li.LinePrice, "image": li.Image,
		}
		count += li.Quantity
		total += li.LinePrice
	}
	return map[string]any{
		"items": items, "item_count": count, "total_price": total,
		"note": c.Note, "currency": map[string]any{"iso_code": c.Currency},
	}
}

// ContextInput is everything the loaders produced for one request
type ContextInput struct {
	Store   *domain.Store
	Options domain.PageRenderOptions

	// Products is the listing the page shows: a collection's products,
	// search results, or the storefront's featured products
	Products    []catalog.Product
	Product     *catalog.Product
	Collection  *catalog.Collection
	Collections []catalog.Collection
	Page        *catalog.Page
	Checkout    *catalog.Checkout
	Cart        *Cart
	Navigation  []catalog.Menu
	Related     []catalog.Product

	ThemeSettings map[string]any
	Pagination    liquid.PageInfo

	Path   string
	Host   string
	Query  url.Values
	Locale string
}

// RenderContext is the root context of a page render. It is complete once
// BuildRenderContext returns and is only read afterwards.
type RenderContext struct {
	Store      *domain.Store
	Options    domain.PageRenderOptions
	Product    *catalog.Product
	Collection *catalog.Collection
	Page       *catalog.Page
	Checkout   *catalog.Checkout
	Products   []catalog.Product
	Settings   map[string]any
	Linklists  map[string]any
	Pagination liquid.PageInfo
	Path       string

	bindings liquid.Bindings
}

// BuildRenderContext assembles the render context. A product is only
// present on product pages and a collection only on collection pages,
// whatever the input carries.
func BuildRenderContext(in ContextInput) *RenderContext {
	pt := in.Options.PageType
	rc := &RenderContext{
		Store:      in.Store,
		Options:    in.Options,
		Page:       in.Page,
		Checkout:   in.Checkout,
		Products:   in.Products,
		Settings:   in.ThemeSettings,
		Pagination: in.Pagination,
		Path:       in.Path,
	}
	if rc.Settings == nil {
		rc.Settings = map[string]any{}
	}
	if pt.NeedsProduct() {
		rc.Product = in.Product
	}
	if pt.NeedsCollection() {
		rc.Collection = in.Collection
	}
	rc.Linklists = ResolveLinklists(in.Navigation, rc.Settings)

	cart := Cart{Currency: in.Store.Currency.Code}
	if in.Cart != nil {
		cart = *in.Cart
	}

	b := liquid.Bindings{
		"shop":      shopObject(in.Store),
		"settings":  rc.Settings,
		"linklists": rc.Linklists,
		"cart":      cart.ToLiquid(),
		"template":  pt.TemplateName(),
		"page_type": string(pt),
		"request":   requestObject(in),
		"currency":  currencyObject(in.Store.Currency),
		"products":  productList(in.Products),
	}
	b["canonical_url"] = canonicalURL(in.Store, rc.canonicalPath())
	b["collections"] = collectionsObject(in.Collections, in.Products)
	b["all_products"] = productsByHandle(in.Products)
	b["recommendations"] = map[string]any{
		"performed":      len(in.Related) > 0,
		"products":       productList(in.Related),
		"products_count": len(in.Related),
	}

	if rc.Product != nil {
		b["product"] = rc.Product.ToLiquid()
	}
	if rc.Collection != nil {
		col := rc.Collection.ToLiquid()
		products := productList(in.Products)
		col["products"] = products
		col["products_count"] = len(products)
		col["all_products_count"] = len(products)
		if in.Pagination.Total >= 0 {
			col["all_products_count"] = in.Pagination.Total
		}
		b["collection"] = col
	}
	if in.Page != nil {
		b["page"] = in.Page.ToLiquid()
	}
	if in.Checkout != nil {
		b["checkout"] = in.Checkout.ToLiquid()
	}
	if pt == domain.PageSearch {
		results := productList(in.Products)
		b["search"] = map[string]any{
			"performed":     in.Options.SearchTerm != "",
			"terms":         in.Options.SearchTerm,
			"results":       results,
			"results_count": len(results),
		}
	}
	b["page_title"] = pageTitle(rc)
	b["page_description"] = pageDescription(rc)

	rc.bindings = b
	return rc
}

// Bindings returns a copy of the root bindings, safe to extend per render
func (rc *RenderContext) Bindings() liquid.Bindings {
	out := make(liquid.Bindings, len(rc.bindings)+4)
	for k, v := range rc.bindings {
		out[k] = v
	}
	return out
}

// PaginationScopes maps the listing expressions templates paginate over to
// the page that was fetched
func (rc *RenderContext) PaginationScopes() map[string]liquid.PageInfo {
	return map[string]liquid.PageInfo{
		"":                    rc.Pagination,
		"collection.products": rc.Pagination,
		"search.results":      rc.Pagination,
		"products":            rc.Pagination,
	}
}

func shopObject(s *domain.Store) map[string]any {
	domainName := s.PrimaryDomain()
	return map[string]any{
		"id":                         s.ID,
		"name":                       s.Name,
		"email":                      s.Email,
		"description":                s.Description,
		"domain":                     domainName,
		"permanent_domain":           s.DefaultDomain,
		"url":                        "https://" + domainName,
		"secure_url":                 "https://" + domainName,
		"currency":                   s.Currency.Code,
		"money_format":               s.Currency.MoneyFormat,
		"money_with_currency_format": s.Currency.MoneyWithCurrencyFormat,
		"locale":                     s.Currency.Locale,
		"logo":                       s.LogoURL,
	}
}

func currencyObject(c domain.CurrencyConfig) map[string]any {
	return map[string]any{
		"iso_code":       c.Code,
		"locale":         c.Locale,
		"decimal_places": c.DecimalPlaces,
		"money_format":   c.MoneyFormat,
	}
}

func requestObject(in ContextInput) map[string]any {
	query := map[string]any{}
	for k, vs := range in.Query {
		items := make([]any, len(vs))
		for i, v := range vs {
			items[i] = v
		}
		query[k] = items
	}
	locale := in.Locale
	if locale == "" {
		locale = in.Store.Currency.Locale
	}
	return map[string]any{
		"path":        in.Path,
		"host":        in.Host,
		"page_type":   string(in.Options.PageType),
		"design_mode": in.Options.EditorMode,
		"query":       query,
		"locale":      map[string]any{"iso_code": locale},
	}
}

func productList(ps []catalog.Product) []any {
	out := make([]any, len(ps))
	for i, p := range ps {
		out[i] = p.ToLiquid()
	}
	return out
}

func productsByHandle(ps []catalog.Product) map[string]any {
	out := make(map[string]any, len(ps))
	for _, p := range ps {
		out[p.Handle] = p.ToLiquid()
	}
	return out
}

// collectionsObject keys collections by handle. "all" holds the page's
// product listing unless the store defines its own "all" collection.
func collectionsObject(cs []catalog.Collection, products []catalog.Product) map[string]any {
	out := make(map[string]any, len(cs)+1)
	for _, c := range cs {
		out[c.Handle] = c.ToLiquid()
	}
	if _, ok := out["all"]; !ok {
		list := productList(products)
		out["all"] = map[string]any{
			"handle": "all", "title": "All products", "url": catalog.CollectionURL("all"),
			"products": list, "products_count": len(list),
		}
	}
	return out
}

// ResolveLinklists picks the store's menus: persisted navigation first,
// then menus embedded in the theme settings, then empty default menus
func ResolveLinklists(menus []catalog.Menu, settings map[string]any) map[string]any {
	if len(menus) == 0 {
		menus = legacyMenus(settings["menus"])
	}
	if len(menus) == 0 {
		menus = []catalog.Menu{
			{Handle: "main-menu", Title: "Main menu"},
			{Handle: "footer", Title: "Footer menu"},
		}
	}
	out := make(map[string]any, len(menus))
	for _, m := range menus {
		out[m.Handle] = m.ToLiquid()
	}
	return out
}

// legacyMenus reads menus from theme settings, either as a map of handle
// to links (or to {title, links}) or as a list of {handle, title, links}
func legacyMenus(raw any) []catalog.Menu {
	var menus []catalog.Menu
	switch v := raw.(type) {
	case map[string]any:
		handles := make([]string, 0, len(v))
		for h := range v {
			handles = append(handles, h)
		}
		sort.Strings(handles)
		for _, h := range handles {
			m := catalog.Menu{Handle: h, Title: h}
			switch entry := v[h].(type) {
			case map[string]any:
				if t, ok := entry["title"].(string); ok && t != "" {
					m.Title = t
				}
				m.Links = linksOf(firstPresent(entry, "links", "items"))
			default:
				m.Links = linksOf(entry)
			}
			menus = append(menus, m)
		}
	case []any:
		for _, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			h, _ := entry["handle"].(string)
			if h == "" {
				continue
			}
			m := catalog.Menu{Handle: h, Title: h}
			if t, ok := entry["title"].(string); ok && t != "" {
				m.Title = t
			}
			m.Links = linksOf(firstPresent(entry, "links", "items"))
			menus = append(menus, m)
		}
	}
	return menus
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func linksOf(v any) []catalog.Link {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return catalog.ParseLinks(raw)
}
