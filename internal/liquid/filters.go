package liquid

import (
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/aryan0dhankhar/storefront/pkg/textutil"
)

func (e *Engine) registerFilters() {
	filters := append(e.moneyFilters(),
		NewFilter("handle", handleFilter),
		NewFilter("handleize", handleFilter),
		NewFilter("escape_html", func(in any, _ []any) (any, error) {
			return html.EscapeString(toString(in)), nil
		}),
		NewFilter("img_url", imgURLFilter),
		NewFilter("image_url", imageURLFilter),
		NewFilter("product_img_url", imgURLFilter),
		NewFilter("asset_url", func(in any, _ []any) (any, error) {
			return e.AssetURL(toString(in)), nil
		}),
		NewFilter("asset_img_url", func(in any, args []any) (any, error) {
			return withImageSize(e.AssetURL(toString(in)), toString(arg(args, 0)), toString(arg(args, 1))), nil
		}),
		NewFilter("file_url", func(in any, _ []any) (any, error) {
			return e.storeFileURL("files", toString(in)), nil
		}),
		NewFilter("stylesheet_tag", func(in any, _ []any) (any, error) {
			return fmt.Sprintf(`<link href="%s" rel="stylesheet" type="text/css" media="all" />`, html.EscapeString(toString(in))), nil
		}),
		NewFilter("script_tag", func(in any, _ []any) (any, error) {
			return fmt.Sprintf(`<script src="%s" type="text/javascript"></script>`, html.EscapeString(toString(in))), nil
		}),
		NewFilter("img_tag", imgTagFilter),
		NewFilter("image_tag", imgTagFilter),
		NewFilter("link_to", linkToFilter),
		NewFilter("within", withinFilter),
		NewFilter("attr", attrFilter),
		NewFilter("t", e.translateFilter),
		NewFilter("pluralize", pluralizeFilter),
		NewFilter("json", func(in any, _ []any) (any, error) {
			b, err := json.Marshal(in)
			if err != nil {
				return "null", nil
			}
			return string(b), nil
		}),
		NewFilter("default_pagination", defaultPaginationFilter),
	)
	e.money = filters[0]
	for _, f := range filters {
		e.register(f)
	}
}

// FormatMoney formats minor units through the engine's money filter
func (e *Engine) FormatMoney(cents int64) string {
	out, err := e.money.Apply(cents, nil)
	if err != nil {
		return FormatMoney(cents, e.env.Currency)
	}
	return toString(out)
}

// AssetURL builds the public URL of a theme asset. Without a store id the
// URL falls back to the store-relative /assets path.
func (e *Engine) AssetURL(name string) string {
	return e.storeFileURL("assets", name)
}

func (e *Engine) storeFileURL(dir, name string) string {
	name = strings.TrimPrefix(name, "/")
	if e.env.StoreID == "" {
		e.logger.Warn("asset url requested without store id, using fallback",
			slog.String("file", name))
		return "/" + dir + "/" + name
	}
	base := strings.TrimSuffix(e.env.AssetBaseURL, "/")
	return base + "/templates/" + e.env.StoreID + "/" + dir + "/" + name
}

func handleFilter(in any, _ []any) (any, error) {
	return handle(in), nil
}

// imageSrc pulls a URL out of an image value, which may be a string or a
// map carrying src/url
func imageSrc(in any) string {
	switch v := in.(type) {
	case string:
		return v
	case map[string]any:
		for _, k := range []string{"src", "url", "featured_image"} {
			if s, ok := v[k]; ok {
				return imageSrc(s)
			}
		}
	}
	return toString(in)
}

// withImageSize appends a size ("300x300", "300x", "x200", "master") and
// optional crop to an image URL as query parameters
func withImageSize(src, size, crop string) string {
	if src == "" {
		return ""
	}
	q := url.Values{}
	if size != "" && size != "master" && size != "original" {
		w, h, _ := strings.Cut(size, "x")
		if w != "" {
			q.Set("width", w)
		}
		if h != "" {
			q.Set("height", h)
		}
	}
	if crop != "" {
		q.Set("crop", crop)
	}
	if len(q) == 0 {
		return src
	}
	sep := "?"
	if strings.Contains(src, "?") {
		sep = "&"
	}
	return src + sep + q.Encode()
}

func imgURLFilter(in any, args []any) (any, error) {
	return withImageSize(imageSrc(in), toString(arg(args, 0)), toString(arg(args, 1))), nil
}

// image_url takes a width and an optional height
func imageURLFilter(in any, args []any) (any, error) {
	size := ""
	if w := toString(arg(args, 0)); w != "" {
		size = w + "x"
		if h := toString(arg(args, 1)); h != "" {
			size += h
		}
	}
	return withImageSize(imageSrc(in), size, ""), nil
}

func imgTagFilter(in any, args []any) (any, error) {
	alt := toString(arg(args, 0))
	if alt == "" {
		if m, ok := in.(map[string]any); ok {
			alt = toString(m["alt"])
		}
	}
	out := fmt.Sprintf(`<img src="%s" alt="%s"`, html.EscapeString(imageSrc(in)), html.EscapeString(alt))
	if class := toString(arg(args, 1)); class != "" {
		out += fmt.Sprintf(` class="%s"`, html.EscapeString(class))
	}
	return out + ` loading="lazy" />`, nil
}

func linkToFilter(in any, args []any) (any, error) {
	href := toString(arg(args, 0))
	out := `<a href="` + html.EscapeString(href) + `"`
	if title := toString(arg(args, 1)); title != "" {
		out += ` title="` + html.EscapeString(title) + `"`
	}
	return out + ">" + toString(in) + "</a>", nil
}

// within scopes a product URL under a collection
func withinFilter(in any, args []any) (any, error) {
	u := toString(in)
	var h string
	switch c := arg(args, 0).(type) {
	case map[string]any:
		h = toString(c["handle"])
	default:
		h = toString(c)
	}
	if h == "" || !strings.HasPrefix(u, "/products/") {
		return u, nil
	}
	return "/collections/" + h + u, nil
}

// attr renders a single escaped HTML attribute, or nothing when the value
// is empty or false
func attrFilter(in any, args []any) (any, error) {
	name := strings.TrimSpace(toString(in))
	if name == "" || strings.ContainsAny(name, " \"'<>=/") {
		return "", nil
	}
	v := arg(args, 0)
	switch val := v.(type) {
	case nil:
		return "", nil
	case bool:
		if !val {
			return "", nil
		}
		return " " + name, nil
	}
	s := toString(v)
	if s == "" {
		return "", nil
	}
	return fmt.Sprintf(` %s="%s"`, name, html.EscapeString(s)), nil
}

func (e *Engine) translateFilter(in any, args []any) (any, error) {
	key := toString(in)
	if s, ok := e.env.Translations[key]; ok {
		if count := arg(args, 0); count != nil {
			s = strings.ReplaceAll(s, "{{ count }}", toString(count))
			s = strings.ReplaceAll(s, "{{count}}", toString(count))
		}
		return s, nil
	}
	last := key
	if i := strings.LastIndex(key, "."); i >= 0 {
		last = key[i+1:]
	}
	return textutil.Humanize(last), nil
}

func pluralizeFilter(in any, args []any) (any, error) {
	n, _ := toCents(in)
	if n == 1 {
		return toString(arg(args, 0)), nil
	}
	return toString(arg(args, 1)), nil
}

func defaultPaginationFilter(in any, _ []any) (any, error) {
	p, ok := in.(map[string]any)
	if !ok {
		return "", nil
	}
	var b strings.Builder
	b.WriteString(`<nav class="pagination" role="navigation">`)
	if prev, ok := p["previous"].(map[string]any); ok {
		fmt.Fprintf(&b, `<span class="prev"><a href="%s">%s</a></span>`, html.EscapeString(toString(prev["url"])), toString(prev["title"]))
	}
	if parts, ok := p["parts"].([]any); ok {
		for _, raw := range parts {
			part, _ := raw.(map[string]any)
			if link, _ := part["is_link"].(bool); link {
				fmt.Fprintf(&b, `<span class="page"><a href="%s">%s</a></span>`, html.EscapeString(toString(part["url"])), toString(part["title"]))
			} else {
				fmt.Fprintf(&b, `<span class="page current">%s</span>`, toString(part["title"]))
			}
		}
	}
	if next, ok := p["next"].(map[string]any); ok {
		fmt.Fprintf(&b, `<span class="next"><a href="%s">%s</a></span>`, html.EscapeString(toString(next["url"])), toString(next["title"]))
	}
	b.WriteString(`</nav>`)
	return b.String(), nil
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}
