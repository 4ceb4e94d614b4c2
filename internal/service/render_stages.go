package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/catalog"
	"github.com/aryan0dhankhar/storefront/internal/composer"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
	"github.com/aryan0dhankhar/storefront/internal/routing"
	"github.com/aryan0dhankhar/storefront/internal/templates"
)

const defaultLayout = "theme"

// notFoundContent stands in for a theme without a 404 template
const notFoundContent = `<div class="storefront-not-found"><h1>Page not found</h1><p><a href="/">Continue shopping</a></p></div>`

// resolve matches the route and resolves the tenant
func (s *RenderService) resolve(ctx context.Context, st State) (State, error) {
	st.Options = routing.Match(st.Request.Path, st.Request.Query)
	st.Options.EditorMode = st.Request.EditorMode

	store, err := s.resolver.ResolveStoreByDomain(ctx, st.Request.Host)
	if err != nil {
		return st, err
	}
	st.Store = store
	return st, nil
}

func (s *RenderService) initEngine(ctx context.Context, st State) (State, error) {
	engine, err := s.loader.Engine(ctx, st.Store)
	if err != nil {
		return st, domain.NewRenderError(st.Store, "", err)
	}
	st.Engine = engine
	st.Assets = liquid.NewAssetCollector()
	return st, nil
}

// loadData fetches the layout, page template, theme settings, navigation
// and page data concurrently. Only a missing layout or page template is
// fatal; every other failure is logged and replaced by an empty value.
func (s *RenderService) loadData(ctx context.Context, st State) (State, error) {
	var (
		g         errgroup.Group
		tpl       PageTemplate
		tplErr    error
		layout    string
		layoutTpl *liquid.Template
		layoutErr error
		data      PageData
		opts      = st.Options
		settings  map[string]any
		menus     []catalog.Menu
	)
	store, query, pt := st.Store, st.Request.Query, st.Options.PageType

	g.Go(func() error {
		tpl, tplErr = s.loadPageTemplate(ctx, store, pt)
		return nil
	})
	g.Go(func() error {
		layout, layoutTpl, layoutErr = s.loadLayout(ctx, store, defaultLayout)
		return nil
	})
	g.Go(func() error {
		var err error
		if settings, err = s.loader.LoadSettings(ctx, store.ID); err != nil {
			s.warn(store, pt, "theme settings unavailable", err)
			settings = map[string]any{}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if menus, err = s.fetcher.Navigation(ctx, store); err != nil {
			s.warn(store, pt, "navigation unavailable", err)
		}
		return nil
	})
	g.Go(func() error {
		data, opts = s.loadPageData(ctx, store, st.Options, query)
		return nil
	})
	_ = g.Wait()
	st.Options = opts
	st.Data = data
	st.Settings = settings
	st.Navigation = menus

	// 1. An unknown product, collection, page or checkout renders the 404 page
	if data.Missing {
		st.StatusCode = http.StatusNotFound
		st.Options = domain.PageRenderOptions{PageType: domain.PageNotFound, EditorMode: st.Options.EditorMode}
		st.Data = PageData{Pagination: data.Pagination}
		tpl, tplErr = s.loadPageTemplate(ctx, st.Store, domain.PageNotFound)
	}

	// 2. Page template
	switch {
	case tplErr == nil:
	case templates.IsNotFound(tplErr) && st.Options.PageType == domain.PageNotFound:
		st.StatusCode = http.StatusNotFound
		tpl = PageTemplate{Path: tpl.Path}
	default:
		return st, templateError(st.Store, tpl.Path, tplErr)
	}
	st.Template = tpl

	// 3. Layout, which a JSON template may rename or turn off
	name := defaultLayout
	if tpl.JSON != nil {
		n, ok := tpl.JSON.LayoutName()
		if !ok {
			return st, nil
		}
		name = n
	}
	if name != defaultLayout {
		layout, layoutTpl, layoutErr = s.loadLayout(ctx, st.Store, name)
	}
	st.LayoutPath = layoutPath(name)
	if layoutErr != nil {
		return st, templateError(st.Store, st.LayoutPath, layoutErr)
	}
	st.LayoutSource = layout
	st.Layout = layoutTpl
	return st, nil
}

func layoutPath(name string) string {
	return "layout/" + name + ".liquid"
}

// templateError maps a template load failure to its typed error
func templateError(store *domain.Store, path string, err error) error {
	var ce *liquid.CompileError
	switch {
	case templates.IsNotFound(err):
		return domain.NewTemplateNotFoundError(store, path, err)
	case errors.As(err, &ce):
		return domain.NewRenderError(store, path, err)
	default:
		return domain.NewDataError(store, "failed to load "+path, err)
	}
}

// loadPageTemplate prefers templates/{name}.json over templates/{name}.liquid
func (s *RenderService) loadPageTemplate(ctx context.Context, store *domain.Store, pt domain.PageType) (PageTemplate, error) {
	jsonPath := "templates/" + pt.TemplateName() + ".json"
	tpl, err := s.loader.LoadJSONTemplate(ctx, store.ID, pt)
	if err == nil {
		return PageTemplate{JSON: tpl, Path: jsonPath}, nil
	}
	if !templates.IsNotFound(err) {
		return PageTemplate{Path: jsonPath}, err
	}
	path := "templates/" + pt.TemplateName() + ".liquid"
	compiled, err := s.loader.LoadCompiledTemplate(ctx, store, path)
	if err != nil {
		return PageTemplate{Path: path}, err
	}
	return PageTemplate{Compiled: compiled, Path: path}, nil
}

func (s *RenderService) loadLayout(ctx context.Context, store *domain.Store, name string) (string, *liquid.Template, error) {
	path := layoutPath(name)
	source, err := s.loader.LoadTemplate(ctx, store.ID, path)
	if err != nil {
		return "", nil, err
	}
	compiled, err := s.loader.LoadCompiledTemplate(ctx, store, path)
	if err != nil {
		return "", nil, err
	}
	return source, compiled, nil
}

func (s *RenderService) buildContext(_ context.Context, st State) (State, error) {
	st.Context = composer.BuildRenderContext(composer.ContextInput{
		Store:         st.Store,
		Options:       st.Options,
		Products:      st.Data.Products,
		Product:       st.Data.Product,
		Collection:    st.Data.Collection,
		Collections:   st.Data.Collections,
		Page:          st.Data.Page,
		Checkout:      st.Data.Checkout,
		Navigation:    st.Navigation,
		Related:       st.Data.Related,
		ThemeSettings: st.Settings,
		Pagination:    st.Data.Pagination,
		Path:          routing.Normalize(st.Request.Path),
		Host:          st.Request.Host,
		Query:         caching.RenderQuery(st.Request.Query),
		Locale:        st.Request.Locale,
	})
	return st, nil
}

// lookupCache short-circuits the pipeline on a page-cache hit. Only
// successful renders are cacheable.
func (s *RenderService) lookupCache(ctx context.Context, st State) (State, error) {
	if s.pages == nil || st.StatusCode != http.StatusOK {
		return st, nil
	}
	st.CacheKey = caching.PageKey(st.Store.ID, st.Options, st.Request.Locale, st.Request.Query)
	if st.CacheKey == "" {
		return st, nil
	}
	if cached, ok := s.pages.Get(ctx, st.CacheKey); ok {
		st.Result = cached
		st.Done = true
	}
	return st, nil
}

func (s *RenderService) renderContent(ctx context.Context, st State) (State, error) {
	st.Scope = &composer.Scope{
		Store:  st.Store,
		Engine: st.Engine,
		Base: liquid.Attach(st.Context.Bindings(), &liquid.Request{
			Assets:     st.Assets,
			Snippets:   s.loader.Snippets(ctx, st.Store),
			Pagination: st.Context.PaginationScopes(),
		}),
		Assets:   st.Assets,
		Settings: st.Context.Settings,
		Editor:   st.Options.EditorMode,
	}

	switch {
	case st.Template.JSON != nil:
		st.Content = s.composer.RenderJSONTemplate(ctx, st.Scope, st.Template.JSON)
	case st.Template.Compiled != nil:
		out, err := st.Engine.Render(st.Template.Compiled, st.Scope.Base)
		if err != nil {
			return st, domain.NewRenderError(st.Store, st.Template.Path, err)
		}
		st.Content = out
	default:
		st.Content = notFoundContent
	}
	return st, nil
}

// renderLayout renders the layout around the content, then injects the
// collected assets and, for editor sessions, the studio bridge
func (s *RenderService) renderLayout(ctx context.Context, st State) (State, error) {
	page := st.Content
	if st.Layout != nil {
		sections := s.composer.PreloadSections(ctx, st.Scope, st.LayoutSource)
		b := liquid.Attach(st.Scope.Base, &liquid.Request{Sections: sections})
		b["content_for_layout"] = st.Content
		b["content_for_header"] = contentForHeader(st)
		out, err := st.Engine.Render(st.Layout, b)
		if err != nil {
			return st, domain.NewRenderError(st.Store, st.LayoutPath, err)
		}
		page = out
	}

	page = st.Assets.Inject(page)
	if st.Options.EditorMode && s.opts.Flags.EditorBridge {
		page = liquid.InjectBefore(page, "</body>", composer.EditorBridgeScript(st.Store.ID, s.opts.StudioSocketPath), true)
	}
	if s.opts.Flags.MinifyHTML {
		if min, err := s.minifier.String("text/html", page); err == nil {
			page = min
		} else {
			s.warn(st.Store, st.Options.PageType, "html minification failed", err)
		}
	}
	st.HTML = page
	return st, nil
}

// contentForHeader is what {{ content_for_header }} prints
func contentForHeader(st State) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<meta name="storefront-store" content="%s">`, html.EscapeString(st.Store.ID))
	if canonical, ok := st.Context.Bindings()["canonical_url"].(string); ok && canonical != "" {
		fmt.Fprintf(&b, `<link rel="canonical" href="%s">`, html.EscapeString(canonical))
	}
	if st.Options.EditorMode {
		b.WriteString(`<meta name="robots" content="noindex">`)
	}
	return b.String()
}

func (s *RenderService) generateMetadata(_ context.Context, st State) (State, error) {
	st.Metadata = composer.GenerateMetadata(st.Context)
	return st, nil
}

// storeResult builds the result and caches it under the route identity
func (s *RenderService) storeResult(ctx context.Context, st State) (State, error) {
	result := &domain.RenderResult{
		HTML:       st.HTML,
		Metadata:   st.Metadata,
		StatusCode: st.StatusCode,
	}
	if st.CacheKey != "" {
		result.CacheKey = st.CacheKey
		result.CacheTTL = s.policy.PageTTL(st.Options.PageType)
		s.pages.Set(ctx, st.CacheKey, result)
	}
	st.Result = result
	return st, nil
}

func (s *RenderService) warn(store *domain.Store, pt domain.PageType, msg string, err error) {
	s.logger.Warn(msg,
		slog.String("store_id", store.ID),
		slog.String("page_type", string(pt)),
		slog.String("error", err.Error()),
	)
}
