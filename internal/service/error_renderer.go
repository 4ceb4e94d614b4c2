package service

import (
	"embed"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"sort"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
)

//go:embed locales/*.yaml
var localeFiles embed.FS

type errorCopy struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Suggestions []string `yaml:"suggestions"`
}

type errorCatalog struct {
	Language string                         `yaml:"language"`
	Home     string                         `yaml:"home"`
	Status   string                         `yaml:"status"`
	Errors   map[domain.ErrorType]errorCopy `yaml:"errors"`
}

const errorPageSource = `<!DOCTYPE html>
<html lang="{{ lang }}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="robots" content="noindex">
<title>{{ title | escape }}{% if store_name != "" %} | {{ store_name | escape }}{% endif %}</title>
<style>body{font-family:system-ui,sans-serif;margin:0;color:#1f2933;background:#f5f7fa}main{max-width:32rem;margin:12vh auto;padding:2rem}.code{color:#7b8794;letter-spacing:.1em}a{color:#2f6fde}</style>
</head>
<body>
<main class="storefront-error storefront-error-{{ status_code }}">
<p class="code">{{ status_label | escape }} {{ status_code }}</p>
<h1>{{ title | escape }}</h1>
<p>{{ description | escape }}</p>
{% if suggestions.size > 0 %}<ul>{% for s in suggestions %}<li>{{ s | escape }}</li>{% endfor %}</ul>{% endif %}
{% if details != "" %}<pre>{{ details | escape }}</pre>{% endif %}
<p><a href="/">{{ home | escape }}</a></p>
</main>
</body>
</html>`

// ErrorRenderer renders the page shown for a fatal render error, in the
// visitor's language when a catalog for it exists
type ErrorRenderer struct {
	catalogs    []errorCatalog
	matcher     language.Matcher
	engine      *liquid.Engine
	template    *liquid.Template
	showDetails bool
	logger      *slog.Logger
}

// NewErrorRenderer loads the embedded catalogs. showDetails adds the
// underlying error to the page and is meant for development.
func NewErrorRenderer(showDetails bool, logger *slog.Logger) (*ErrorRenderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	catalogs, err := loadErrorCatalogs()
	if err != nil {
		return nil, err
	}
	tags := make([]language.Tag, len(catalogs))
	for i, c := range catalogs {
		tags[i] = language.Make(c.Language)
	}

	engine := liquid.NewEngine(liquid.Environment{Currency: domain.DefaultCurrency()}, logger)
	tpl, err := engine.Compile("error_page.liquid", errorPageSource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile error page: %w", err)
	}
	return &ErrorRenderer{
		catalogs:    catalogs,
		matcher:     language.NewMatcher(tags),
		engine:      engine,
		template:    tpl,
		showDetails: showDetails,
		logger:      logger,
	}, nil
}

// loadErrorCatalogs reads every locale file, English first so that it is
// the matcher's fallback
func loadErrorCatalogs() ([]errorCatalog, error) {
	paths, err := fs.Glob(localeFiles, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to list error locales: %w", err)
	}
	sort.Strings(paths)
	var out []errorCatalog
	for _, p := range paths {
		raw, err := localeFiles.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		var c errorCatalog
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", p, err)
		}
		if c.Language == "en" {
			out = append([]errorCatalog{c}, out...)
		} else {
			out = append(out, c)
		}
	}
	if len(out) == 0 || out[0].Language != "en" {
		return nil, errors.New("failed to load error locales: no English catalog")
	}
	return out, nil
}

// Languages lists the catalog languages, fallback first
func (r *ErrorRenderer) Languages() []string {
	out := make([]string, len(r.catalogs))
	for i, c := range r.catalogs {
		out[i] = c.Language
	}
	return out
}

func (r *ErrorRenderer) catalogFor(acceptLanguage string) errorCatalog {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return r.catalogs[0]
	}
	_, idx, conf := r.matcher.Match(tags...)
	if conf == language.No {
		return r.catalogs[0]
	}
	return r.catalogs[idx]
}

// Render builds the error page for err. The page is never cached. store
// is the resolved tenant when known; it names the page title.
func (r *ErrorRenderer) Render(err error, store *domain.Store, acceptLanguage string) *domain.RenderResult {
	se := domain.AsStoreError(err)
	if store == nil {
		store = se.Store
	}
	cat := r.catalogFor(acceptLanguage)
	text, ok := cat.Errors[se.Type]
	if !ok {
		text = r.catalogs[0].Errors[se.Type]
	}
	if text.Title == "" {
		text = r.catalogs[0].Errors[domain.ErrorRender]
	}

	storeName := ""
	if store != nil {
		storeName = store.Name
	}
	details := ""
	if r.showDetails {
		details = se.Error()
	}
	suggestions := make([]any, len(text.Suggestions))
	for i, s := range text.Suggestions {
		suggestions[i] = s
	}

	title := text.Title
	if storeName != "" {
		title += " | " + storeName
	}
	result := &domain.RenderResult{
		Metadata:   domain.Metadata{Title: title, Description: text.Description},
		StatusCode: se.StatusCode,
	}

	out, rerr := r.engine.Render(r.template, liquid.Bindings{
		"lang":         cat.Language,
		"title":        text.Title,
		"description":  text.Description,
		"suggestions":  suggestions,
		"store_name":   storeName,
		"status_label": cat.Status,
		"status_code":  se.StatusCode,
		"details":      details,
		"home":         cat.Home,
	})
	if rerr != nil {
		r.logger.Error("error page render failed",
			slog.String("type", string(se.Type)),
			slog.String("error", rerr.Error()),
		)
		out = fallbackErrorPage(title, text.Description, se.StatusCode)
	}
	result.HTML = out
	return result
}

func fallbackErrorPage(title, description string, status int) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>%s</title></head>`+
		`<body><h1>%d %s</h1><p>%s</p><p><a href="/">Home</a></p></body></html>`,
		html.EscapeString(title), status, html.EscapeString(title), html.EscapeString(description))
}
