package liquid

import (
	"html"
	"strings"
	"sync"
)

type assetKind int

const (
	assetStylesheet assetKind = iota
	assetInlineStyle
	assetScript
	assetInlineScript
)

type asset struct {
	kind  assetKind
	value string
}

// AssetCollector accumulates the CSS and JS captured by style, stylesheet,
// script and javascript tags during one request. Duplicates are dropped
// and everything is injected once into the finished document.
type AssetCollector struct {
	mu     sync.Mutex
	assets []asset
	seen   map[string]struct{}
}

// NewAssetCollector creates an empty collector
func NewAssetCollector() *AssetCollector {
	return &AssetCollector{seen: map[string]struct{}{}}
}

func (c *AssetCollector) add(kind assetKind, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	var key string
	switch kind {
	case assetStylesheet, assetScript:
		key = string(rune('0'+kind)) + value
	default:
		key = string(rune('0'+kind)) + HashSource([]byte(value))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[key]; dup {
		return
	}
	c.seen[key] = struct{}{}
	c.assets = append(c.assets, asset{kind: kind, value: value})
}

// AddStylesheet records an external stylesheet URL
func (c *AssetCollector) AddStylesheet(url string) { c.add(assetStylesheet, url) }

// AddInlineStyle records inline CSS
func (c *AssetCollector) AddInlineStyle(css string) { c.add(assetInlineStyle, css) }

// AddScript records an external script URL
func (c *AssetCollector) AddScript(url string) { c.add(assetScript, url) }

// AddInlineScript records inline JS
func (c *AssetCollector) AddInlineScript(js string) { c.add(assetInlineScript, js) }

// Merge appends other's assets in their original order
func (c *AssetCollector) Merge(other *AssetCollector) {
	if other == nil || other == c {
		return
	}
	other.mu.Lock()
	items := append([]asset(nil), other.assets...)
	other.mu.Unlock()
	for _, a := range items {
		c.add(a.kind, a.value)
	}
}

// Len returns the number of distinct assets collected
func (c *AssetCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.assets)
}

// HeadHTML renders the collected stylesheets
func (c *AssetCollector) HeadHTML() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	var inline []string
	for _, a := range c.assets {
		switch a.kind {
		case assetStylesheet:
			b.WriteString(`<link rel="stylesheet" href="` + html.EscapeString(a.value) + `" media="all">` + "\n")
		case assetInlineStyle:
			inline = append(inline, a.value)
		}
	}
	if len(inline) > 0 {
		b.WriteString("<style data-collected>\n" + strings.Join(inline, "\n") + "\n</style>\n")
	}
	return b.String()
}

// BodyHTML renders the collected scripts
func (c *AssetCollector) BodyHTML() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	var inline []string
	for _, a := range c.assets {
		switch a.kind {
		case assetScript:
			b.WriteString(`<script src="` + html.EscapeString(a.value) + `" defer></script>` + "\n")
		case assetInlineScript:
			inline = append(inline, a.value)
		}
	}
	if len(inline) > 0 {
		b.WriteString("<script data-collected>\n" + strings.Join(inline, "\n") + "\n</script>\n")
	}
	return b.String()
}

// Inject places stylesheets before </head> and scripts before </body>.
// A document without those markers gets them prepended or appended.
func (c *AssetCollector) Inject(doc string) string {
	doc = InjectBefore(doc, "</head>", c.HeadHTML(), false)
	return InjectBefore(doc, "</body>", c.BodyHTML(), true)
}

// InjectBefore inserts snippet before the last occurrence of marker,
// matched case-insensitively. Without the marker the snippet is appended
// when appendIfMissing is set and prepended otherwise.
func InjectBefore(doc, marker, snippet string, appendIfMissing bool) string {
	if snippet == "" {
		return doc
	}
	idx := lastIndexFold(doc, marker)
	if idx < 0 {
		if appendIfMissing {
			return doc + snippet
		}
		return snippet + doc
	}
	return doc[:idx] + snippet + doc[idx:]
}

func lastIndexFold(s, substr string) int {
	for i := len(s) - len(substr); i >= 0; i-- {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}
