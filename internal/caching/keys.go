package caching

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/aryan0dhankhar/storefront/internal/domain"
)

// query parameters that never change what a page renders
var ignoredParams = map[string]bool{
	"fbclid": true, "gclid": true, "msclkid": true, "ref": true,
	"_pos": true, "_sid": true, "_ss": true, "variant_ref": true,
}

// PageKey derives the page-render cache key for a request. It returns ""
// when the page must not be cached: editor mode, cart and checkout pages,
// and product or collection pages whose entity id was not resolved, since
// a raw handle may be ambiguous. locale is the visitor locale templates
// can read, empty when it falls back to the store's.
func PageKey(storeID string, opts domain.PageRenderOptions, locale string, query url.Values) string {
	if storeID == "" || opts.EditorMode {
		return ""
	}
	var identity string
	switch opts.PageType {
	case domain.PageCart, domain.PageCheckout, domain.PageCheckoutStart, domain.PageCheckoutConfirmation:
		return ""
	case domain.PageProduct:
		if opts.ProductID == "" {
			return ""
		}
		identity = "p:" + opts.ProductID
		if opts.CollectionHandle != "" {
			identity += "|c:" + opts.CollectionHandle
		}
	case domain.PageCollection:
		if opts.CollectionID == "" {
			return ""
		}
		identity = "c:" + opts.CollectionID
	case domain.PageSearch:
		identity = "q:" + strings.ToLower(strings.TrimSpace(opts.SearchTerm))
	case domain.PageIndex, domain.PageNotFound, domain.PagePolicies:
		identity = "-"
	default:
		if !opts.PageType.Valid() {
			return ""
		}
		identity = "h:" + opts.Handle
	}

	key := StoreKey(storeID, "page", string(opts.PageType), identity)
	if opts.NextToken != "" {
		key += "|t:" + opts.NextToken
	}
	if locale = strings.ToLower(strings.TrimSpace(locale)); locale != "" {
		key += "|l:" + locale
	}
	if q := CanonicalQuery(query); q != "" {
		key += fmt.Sprintf("|q:%016x", xxhash.Sum64String(q))
	}
	return key
}

// CanonicalQuery encodes a query with sorted keys and values, dropping
// tracking parameters and the search term, which is already part of the
// route identity
func CanonicalQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		lk := strings.ToLower(k)
		if trackingParam(lk) || lk == "q" || lk == "token" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// RenderQuery returns the query without tracking parameters. It is the
// view of the query templates get, so everything they can read is part
// of the page key.
func RenderQuery(query url.Values) url.Values {
	out := make(url.Values, len(query))
	for k, vs := range query {
		if trackingParam(strings.ToLower(k)) {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func trackingParam(lowerKey string) bool {
	return ignoredParams[lowerKey] || strings.HasPrefix(lowerKey, "utm_")
}
