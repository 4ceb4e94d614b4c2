package liquid

import (
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/osteele/liquid/render"
)

// SectionGroups lists the sections each known section group expands to
var SectionGroups = map[string][]string{
	"header-group": {"announcement-bar", "header"},
	"footer-group": {"footer"},
}

func (e *Engine) registerTags() {
	e.eng.RegisterBlock("schema", func(render.Context) (string, error) { return "", nil })
	e.eng.RegisterTag("section", e.sectionTag)
	e.eng.RegisterTag("sections", e.sectionsTag)
	e.eng.RegisterBlock("paginate", e.paginateTag)
	e.eng.RegisterTag("render", e.renderTag)
	e.eng.RegisterTag("include", e.renderTag)
	e.eng.RegisterBlock("style", e.styleTag)
	e.eng.RegisterBlock("stylesheet", e.styleTag)
	e.eng.RegisterBlock("script", e.scriptTag)
	e.eng.RegisterBlock("javascript", e.scriptTag)
	e.eng.RegisterBlock("form", e.formTag)
	e.eng.RegisterBlock("filters", e.filtersTag)
}

// SectionNotFound is the placeholder emitted for a section with no output
func SectionNotFound(name string) string {
	return fmt.Sprintf("<!-- Section '%s' not found -->", name)
}

func (e *Engine) sectionTag(ctx render.Context) (string, error) {
	name, err := literalOrEval(ctx, ctx.TagArgs())
	if err != nil {
		return "", err
	}
	if out, ok := sectionsFrom(ctx)[name]; ok {
		return out, nil
	}
	return SectionNotFound(name), nil
}

func (e *Engine) sectionsTag(ctx render.Context) (string, error) {
	group, err := literalOrEval(ctx, ctx.TagArgs())
	if err != nil {
		return "", err
	}
	outputs := sectionsFrom(ctx)
	if out, ok := outputs[group]; ok {
		return out, nil
	}
	members, known := SectionGroups[group]
	if !known {
		return fmt.Sprintf("<!-- Section group '%s' not found -->", group), nil
	}
	var b strings.Builder
	for _, name := range members {
		if out, ok := outputs[name]; ok {
			b.WriteString(out)
		} else {
			b.WriteString(SectionNotFound(name))
		}
	}
	return b.String(), nil
}

// BuildPaginate assembles the paginate object for a listing of count items
func BuildPaginate(info PageInfo, count int) map[string]any {
	if info.CurrentPage < 1 {
		info.CurrentPage = 1
	}
	if info.PageSize < 1 {
		info.PageSize = 12
	}
	items := count
	pages := info.CurrentPage
	if info.Total >= 0 {
		items = info.Total
		pages = (info.Total + info.PageSize - 1) / info.PageSize
	} else if info.NextToken != "" {
		pages++
	}

	p := map[string]any{
		"current_page":   info.CurrentPage,
		"current_offset": (info.CurrentPage - 1) * info.PageSize,
		"page_size":      info.PageSize,
		"items":          items,
		"pages":          pages,
	}

	var parts []any
	for i := 1; i < info.CurrentPage; i++ {
		part := map[string]any{"title": i, "is_link": false}
		switch {
		case i == 1:
			part["url"], part["is_link"] = pageURL(info.Params, 1, "", ""), true
		case i == info.CurrentPage-1 && info.PreviousToken != "":
			part["url"], part["is_link"] = pageURL(info.Params, i, info.PreviousToken, ""), true
		}
		parts = append(parts, part)
	}
	parts = append(parts, map[string]any{"title": info.CurrentPage, "is_link": false})

	// a page past the first is only addressable through its token
	switch {
	case info.CurrentPage == 2:
		p["previous"] = map[string]any{"title": "&laquo; Previous", "url": pageURL(info.Params, 1, "", ""), "is_link": true}
	case info.CurrentPage > 2 && info.PreviousToken != "":
		p["previous"] = map[string]any{"title": "&laquo; Previous", "url": pageURL(info.Params, info.CurrentPage-1, info.PreviousToken, ""), "is_link": true}
	}
	if info.NextToken != "" {
		next := map[string]any{"title": "Next &raquo;", "url": pageURL(info.Params, info.CurrentPage+1, info.NextToken, info.Token), "is_link": true}
		p["next"] = next
		parts = append(parts, map[string]any{"title": info.CurrentPage + 1, "url": next["url"], "is_link": true})
	}
	p["parts"] = parts
	return p
}

// pageURL links a listing page, keeping the listing's other parameters
func pageURL(params url.Values, page int, token, previous string) string {
	q := url.Values{}
	for k, vs := range params {
		switch k {
		case "page", "token", "previous":
			continue
		}
		q[k] = vs
	}
	q.Set("page", strconv.Itoa(page))
	if token != "" {
		q.Set("token", token)
	}
	if previous != "" {
		q.Set("previous", previous)
	}
	return "?" + q.Encode()
}

func (e *Engine) paginateTag(ctx render.Context) (string, error) {
	args := strings.TrimSpace(ctx.TagArgs())
	expr, sizeExpr, hasSize := cutWord(args, "by")
	size := 12
	if hasSize {
		v, err := evalArg(ctx, sizeExpr)
		if err != nil {
			return "", err
		}
		if n, ok := toCents(v); ok && n > 0 {
			size = int(n)
		}
	}
	items, err := ctx.EvaluateString(expr)
	if err != nil {
		return "", err
	}
	info, ok := pageInfoFor(ctx, expr)
	if !ok {
		info = PageInfo{CurrentPage: 1, Total: -1}
	}
	info.PageSize = size

	previous := ctx.Get("paginate")
	ctx.Set("paginate", BuildPaginate(info, len(toSlice(items))))
	out, err := ctx.InnerString()
	ctx.Set("paginate", previous)
	return out, err
}

// renderCall is a parsed render/include invocation
type renderCall struct {
	name   string
	mode   string // "", "with" or "for"
	expr   string
	alias  string
	params []param
}

type param struct {
	key  string
	expr string
}

func parseRenderArgs(args string) (renderCall, error) {
	parts := splitTopLevel(args, ',')
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return renderCall{}, fmt.Errorf("render requires a snippet name")
	}
	name, rest := firstToken(strings.TrimSpace(parts[0]))
	call := renderCall{name: name}
	if fields := strings.Fields(rest); len(fields) > 0 {
		if (fields[0] != "with" && fields[0] != "for") || len(fields) < 2 {
			return renderCall{}, fmt.Errorf("unexpected render arguments %q", rest)
		}
		call.mode = fields[0]
		call.expr = fields[1]
		if len(fields) >= 4 && fields[2] == "as" {
			call.alias = fields[3]
		}
	}
	for _, p := range parts[1:] {
		k, v, ok := cutParam(p)
		if !ok {
			return renderCall{}, fmt.Errorf("invalid render parameter %q", strings.TrimSpace(p))
		}
		call.params = append(call.params, param{key: k, expr: v})
	}
	return call, nil
}

// renderTag implements render and include identically
func (e *Engine) renderTag(ctx render.Context) (string, error) {
	call, err := parseRenderArgs(ctx.TagArgs())
	if err != nil {
		return "", err
	}
	name, err := literalOrEval(ctx, call.name)
	if err != nil {
		return "", err
	}
	depth := depthFrom(ctx)
	if depth >= MaxSnippetDepth {
		e.logger.Warn("snippet nesting too deep", slog.String("snippet", name), slog.Int("depth", depth))
		return fmt.Sprintf("<!-- Snippet '%s' exceeds max depth -->", name), nil
	}
	source := snippetsFrom(ctx)
	if source == nil {
		return fmt.Sprintf("<!-- Snippet '%s' not found -->", name), nil
	}
	tpl, err := source.Snippet(name)
	if err != nil {
		e.logger.Warn("snippet unavailable", slog.String("snippet", name), slog.String("error", err.Error()))
		return fmt.Sprintf("<!-- Snippet '%s' not found -->", name), nil
	}

	base := make(Bindings, len(ctx.Bindings())+len(call.params)+2)
	for k, v := range ctx.Bindings() {
		base[k] = v
	}
	base[keyDepth] = depth + 1
	for _, p := range call.params {
		v, err := evalArg(ctx, p.expr)
		if err != nil {
			return "", err
		}
		base[p.key] = v
	}
	alias := call.alias
	if alias == "" {
		alias = name[strings.LastIndex(name, "/")+1:]
	}

	switch call.mode {
	case "with":
		v, err := evalArg(ctx, call.expr)
		if err != nil {
			return "", err
		}
		base[alias] = v
		return e.Render(tpl, base)
	case "for":
		v, err := evalArg(ctx, call.expr)
		if err != nil {
			return "", err
		}
		items := toSlice(v)
		var b strings.Builder
		for i, item := range items {
			scope := make(Bindings, len(base)+2)
			for k, v := range base {
				scope[k] = v
			}
			scope[alias] = item
			scope["forloop"] = map[string]any{
				"index": i + 1, "index0": i, "first": i == 0, "last": i == len(items)-1, "length": len(items),
			}
			out, err := e.Render(tpl, scope)
			if err != nil {
				return "", err
			}
			b.WriteString(out)
		}
		return b.String(), nil
	}
	return e.Render(tpl, base)
}

func (e *Engine) assetRef(ctx render.Context) (string, error) {
	ref := strings.TrimSpace(ctx.TagArgs())
	if ref == "" {
		return "", nil
	}
	name, err := literalOrEval(ctx, ref)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") || strings.HasPrefix(name, "/") {
		return name, nil
	}
	return e.AssetURL(name), nil
}

// styleTag captures CSS into the request's asset collector. Without a
// collector the CSS is emitted in place.
func (e *Engine) styleTag(ctx render.Context) (string, error) {
	body, err := ctx.InnerString()
	if err != nil {
		return "", err
	}
	href, err := e.assetRef(ctx)
	if err != nil {
		return "", err
	}
	if c := assetsFrom(ctx); c != nil {
		c.AddStylesheet(href)
		c.AddInlineStyle(body)
		return "", nil
	}
	var out string
	if href != "" {
		out = `<link rel="stylesheet" href="` + html.EscapeString(href) + `">`
	}
	if strings.TrimSpace(body) != "" {
		out += "<style>" + body + "</style>"
	}
	return out, nil
}

func (e *Engine) scriptTag(ctx render.Context) (string, error) {
	body, err := ctx.InnerString()
	if err != nil {
		return "", err
	}
	src, err := e.assetRef(ctx)
	if err != nil {
		return "", err
	}
	if c := assetsFrom(ctx); c != nil {
		c.AddScript(src)
		c.AddInlineScript(body)
		return "", nil
	}
	var out string
	if src != "" {
		out = `<script src="` + html.EscapeString(src) + `" defer></script>`
	}
	if strings.TrimSpace(body) != "" {
		out += "<script>" + body + "</script>"
	}
	return out, nil
}

var formActions = map[string]string{
	"product":                   "/cart/add",
	"cart":                      "/cart",
	"contact":                   "/contact#contact_form",
	"customer":                  "/contact#newsletter",
	"customer_login":            "/account/login",
	"create_customer":           "/account",
	"recover_customer_password": "/account/recover",
	"localization":              "/localization",
	"search":                    "/search",
}

func (e *Engine) formTag(ctx render.Context) (string, error) {
	parts := splitTopLevel(ctx.TagArgs(), ',')
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return "", fmt.Errorf("form requires a type")
	}
	formType, err := literalOrEval(ctx, parts[0])
	if err != nil {
		return "", err
	}
	var object map[string]any
	var attrs []param
	for _, p := range parts[1:] {
		if k, v, ok := cutParam(p); ok {
			val, err := evalArg(ctx, v)
			if err != nil {
				return "", err
			}
			attrs = append(attrs, param{key: k, expr: toString(val)})
			continue
		}
		v, err := evalArg(ctx, p)
		if err != nil {
			return "", err
		}
		object, _ = v.(map[string]any)
	}

	action, ok := formActions[formType]
	if !ok {
		action = "/" + formType
		if object != nil && toString(object["url"]) != "" {
			action = toString(object["url"]) + "/comments"
		}
	}
	method := "post"
	if formType == "search" {
		method = "get"
	}
	id := formType + "-form"
	if object != nil && object["id"] != nil {
		id += "-" + toString(object["id"])
	}
	for _, a := range attrs {
		if a.key == "id" {
			id = a.expr
		}
	}

	previous := ctx.Get("form")
	ctx.Set("form", map[string]any{"id": id, "type": formType, "posted_successfully": false, "errors": nil})
	inner, err := ctx.InnerString()
	ctx.Set("form", previous)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<form method="%s" action="%s" id="%s" accept-charset="UTF-8"`, method, html.EscapeString(action), html.EscapeString(id))
	for _, a := range attrs {
		if a.key == "id" {
			continue
		}
		fmt.Fprintf(&b, ` %s="%s"`, html.EscapeString(a.key), html.EscapeString(a.expr))
	}
	if formType == "product" {
		b.WriteString(` enctype="multipart/form-data"`)
	}
	b.WriteString(">")
	if method == "post" {
		fmt.Fprintf(&b, `<input type="hidden" name="form_type" value="%s" /><input type="hidden" name="utf8" value="✓" />`, html.EscapeString(formType))
	}
	b.WriteString(inner)
	b.WriteString("</form>")
	return b.String(), nil
}

// facet sources for the filters block: label, parameter name and the
// product field the values are read from
var facetFields = []struct {
	label, param, field string
}{
	{"Availability", "filter.v.availability", "available"},
	{"Vendor", "filter.p.vendor", "vendor"},
	{"Product type", "filter.p.product_type", "type"},
	{"Tags", "filter.p.tag", "tags"},
}

// BuildFacets derives collection filters from the products of a
// collection. active holds the current query values per parameter name.
func BuildFacets(products []any, active map[string][]string) []any {
	var facets []any
	for _, f := range facetFields {
		counts := map[string]int{}
		for _, raw := range products {
			p, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			switch v := p[f.field].(type) {
			case bool:
				if v {
					counts["1"]++
				} else {
					counts["0"]++
				}
			default:
				for _, item := range toSlice(v) {
					if s := toString(item); s != "" {
						counts[s]++
					}
				}
			}
		}
		if len(counts) == 0 {
			continue
		}
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var values, activeValues []any
		for _, k := range keys {
			label := k
			if f.field == "available" {
				label = map[string]string{"1": "In stock", "0": "Out of stock"}[k]
			}
			isActive := contains(active[f.param], k)
			v := map[string]any{
				"label": label, "value": k, "param_name": f.param, "count": counts[k], "active": isActive,
				"url_to_add": "?" + f.param + "=" + k,
			}
			values = append(values, v)
			if isActive {
				activeValues = append(activeValues, v)
			}
		}
		facets = append(facets, map[string]any{
			"label": f.label, "param_name": f.param, "type": "list",
			"values": values, "active_values": activeValues,
		})
	}
	return facets
}

// filtersTag wraps its body in a GET form targeting the collection and
// exposes the collection's facets as filters
func (e *Engine) filtersTag(ctx render.Context) (string, error) {
	expr := strings.TrimSpace(ctx.TagArgs())
	if expr == "" {
		expr = "collection"
	}
	v, err := ctx.EvaluateString(expr)
	if err != nil {
		return "", err
	}
	collection, _ := v.(map[string]any)

	facets, ok := collection["filters"].([]any)
	if !ok {
		facets = BuildFacets(toSlice(collection["products"]), activeQuery(ctx))
	}

	previous := ctx.Get("filters")
	ctx.Set("filters", facets)
	inner, err := ctx.InnerString()
	ctx.Set("filters", previous)
	if err != nil {
		return "", err
	}
	action := toString(collection["url"])
	return fmt.Sprintf(`<form class="collection-filters" method="get" action="%s">%s</form>`, html.EscapeString(action), inner), nil
}

func activeQuery(ctx render.Context) map[string][]string {
	req, _ := ctx.Get("request").(map[string]any)
	out := map[string][]string{}
	switch q := req["query"].(type) {
	case map[string][]string:
		return q
	case map[string]any:
		for k, v := range q {
			for _, item := range toSlice(v) {
				out[k] = append(out[k], toString(item))
			}
		}
	case map[string]string:
		for k, v := range q {
			out[k] = []string{v}
		}
	}
	return out
}

// evalArg evaluates a tag argument, taking quoted literals verbatim
func evalArg(ctx render.Context, expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	if s, ok := unquote(expr); ok {
		return s, nil
	}
	return ctx.EvaluateString(expr)
}

// literalOrEval evaluates expr to a string; a bare word that evaluates to
// nothing is taken literally
func literalOrEval(ctx render.Context, expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	v, err := evalArg(ctx, expr)
	if err != nil {
		return "", err
	}
	if v == nil && isIdentifier(expr) {
		return expr, nil
	}
	return toString(v), nil
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] && !strings.ContainsRune(s[1:len(s)-1], rune(s[0])) {
		return s[1 : len(s)-1], true
	}
	return "", false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '-' || r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// splitTopLevel splits s on sep outside quotes and brackets
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var quote rune
	depth := 0
	start := 0
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			depth--
		case r == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// firstToken splits off a leading quoted string or word
func firstToken(s string) (string, string) {
	if s == "" {
		return "", ""
	}
	if s[0] == '\'' || s[0] == '"' {
		if end := strings.IndexByte(s[1:], s[0]); end >= 0 {
			return s[:end+2], strings.TrimSpace(s[end+2:])
		}
		return s, ""
	}
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

// cutParam splits "key: expr"
func cutParam(s string) (string, string, bool) {
	s = strings.TrimSpace(s)
	k, v, ok := strings.Cut(s, ":")
	k = strings.TrimSpace(k)
	if !ok || !isIdentifier(k) {
		return "", "", false
	}
	return k, strings.TrimSpace(v), true
}

// cutWord splits s around the first standalone occurrence of word
func cutWord(s, word string) (string, string, bool) {
	fields := strings.Fields(s)
	for i, f := range fields {
		if f == word && i > 0 {
			return strings.Join(fields[:i], " "), strings.Join(fields[i+1:], " "), true
		}
	}
	return strings.TrimSpace(s), "", false
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case nil:
		return nil
	case []any:
		return s
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	case string:
		return []any{s}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
