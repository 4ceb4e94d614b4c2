package liquid

import (
	"net/url"

	"github.com/osteele/liquid/render"
)

// hidden binding keys carrying per-request state to tags
const (
	keyAssets     = "__assets"
	keySections   = "__sections"
	keySnippets   = "__snippets"
	keyDepth      = "__depth"
	keyPagination = "__pagination"
)

// MaxSnippetDepth bounds nested render/include tags
const MaxSnippetDepth = 10

// SectionOutputs maps a section name or group name to its pre-rendered HTML
type SectionOutputs map[string]string

// SnippetSource resolves snippet names for render and include
type SnippetSource interface {
	Snippet(name string) (*Template, error)
}

// PageInfo describes the page of a paginated listing being rendered.
// NextToken is the only signal for whether a next page exists.
type PageInfo struct {
	CurrentPage int
	PageSize    int
	// Token selected the current page; it becomes the previous token of
	// the next page
	Token         string
	NextToken     string
	PreviousToken string
	// Params are carried into every generated page link
	Params url.Values
	// Total is the item count when known, -1 otherwise
	Total int
}

// Request is the per-request state attached to a render
type Request struct {
	Assets   *AssetCollector
	Sections SectionOutputs
	Snippets SnippetSource
	// Pagination is keyed by listing expression, e.g. "collection.products";
	// the "" entry applies to any expression without its own entry
	Pagination map[string]PageInfo
}

// Attach returns a copy of b carrying the request state
func Attach(b Bindings, r *Request) Bindings {
	out := make(Bindings, len(b)+4)
	for k, v := range b {
		out[k] = v
	}
	if r == nil {
		return out
	}
	if r.Assets != nil {
		out[keyAssets] = r.Assets
	}
	if r.Sections != nil {
		out[keySections] = r.Sections
	}
	if r.Snippets != nil {
		out[keySnippets] = r.Snippets
	}
	if r.Pagination != nil {
		out[keyPagination] = r.Pagination
	}
	return out
}

// WithAssets returns a copy of b whose asset collector is replaced
func WithAssets(b Bindings, assets *AssetCollector) Bindings {
	out := make(Bindings, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	out[keyAssets] = assets
	return out
}

func assetsFrom(ctx render.Context) *AssetCollector {
	a, _ := ctx.Get(keyAssets).(*AssetCollector)
	return a
}

func sectionsFrom(ctx render.Context) SectionOutputs {
	s, _ := ctx.Get(keySections).(SectionOutputs)
	return s
}

func snippetsFrom(ctx render.Context) SnippetSource {
	s, _ := ctx.Get(keySnippets).(SnippetSource)
	return s
}

func depthFrom(ctx render.Context) int {
	d, _ := ctx.Get(keyDepth).(int)
	return d
}

func pageInfoFor(ctx render.Context, expr string) (PageInfo, bool) {
	m, _ := ctx.Get(keyPagination).(map[string]PageInfo)
	if m == nil {
		return PageInfo{}, false
	}
	if p, ok := m[expr]; ok {
		return p, true
	}
	p, ok := m[""]
	return p, ok
}
