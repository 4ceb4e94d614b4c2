package service

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/catalog"
	"github.com/aryan0dhankhar/storefront/internal/composer"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/featureflags"
	"github.com/aryan0dhankhar/storefront/internal/liquid"
	"github.com/aryan0dhankhar/storefront/internal/observability/metrics"
	"github.com/aryan0dhankhar/storefront/internal/observability/tracing"
	"github.com/aryan0dhankhar/storefront/internal/templates"
	"github.com/aryan0dhankhar/storefront/internal/tenant"
)

// RenderRequest is one storefront page request
type RenderRequest struct {
	Host  string
	Path  string
	Query url.Values
	// Locale is the visitor's preferred locale, e.g. from Accept-Language
	Locale     string
	EditorMode bool
}

// RenderOptions tunes listing sizes and optional output stages
type RenderOptions struct {
	// PageSize is the number of products per collection or search page
	PageSize int
	// FeaturedLimit is the number of products the index page loads
	FeaturedLimit int
	// RelatedLimit is the number of recommendations on product pages
	RelatedLimit int
	// StudioSocketPath is where the editor bridge connects
	StudioSocketPath string
	Flags            featureflags.Set
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.PageSize <= 0 {
		o.PageSize = 24
	}
	if o.FeaturedLimit <= 0 {
		o.FeaturedLimit = 12
	}
	if o.RelatedLimit <= 0 {
		o.RelatedLimit = 4
	}
	if o.StudioSocketPath == "" {
		o.StudioSocketPath = "/studio/ws"
	}
	return o
}

// PageTemplate is the template a page renders: a JSON section list or a
// compiled Liquid template. Both are nil when the theme has neither and
// the page has a built-in fallback.
type PageTemplate struct {
	JSON     *templates.JSONTemplate
	Compiled *liquid.Template
	Path     string
}

// PageData is what the catalog produced for the page
type PageData struct {
	Products    []catalog.Product
	Product     *catalog.Product
	Collection  *catalog.Collection
	Collections []catalog.Collection
	Page        *catalog.Page
	Checkout    *catalog.Checkout
	Related     []catalog.Product
	Pagination  liquid.PageInfo
	// Missing is set when the page's entity does not exist
	Missing bool
}

// State is what flows between pipeline stages. A stage returns a new
// State rather than mutating the one it was given.
type State struct {
	Request RenderRequest
	Options domain.PageRenderOptions
	Store   *domain.Store
	Engine  *liquid.Engine
	Assets  *liquid.AssetCollector

	Template PageTemplate
	// LayoutSource is "" when the page renders without a layout
	LayoutSource string
	Layout       *liquid.Template
	LayoutPath   string

	Settings   map[string]any
	Navigation []catalog.Menu
	Data       PageData

	Context  *composer.RenderContext
	Scope    *composer.Scope
	CacheKey string
	Content  string
	HTML     string
	Metadata domain.Metadata

	StatusCode int
	Result     *domain.RenderResult
	// Done ends the pipeline with Result
	Done bool
}

// StageFunc is one step of a page render
type StageFunc func(ctx context.Context, st State) (State, error)

// Stage is a named pipeline step. Every stage is traced and timed.
type Stage struct {
	Name string
	Run  StageFunc
}

// RenderService renders storefront pages through a fixed stage pipeline
type RenderService struct {
	resolver *tenant.Resolver
	loader   *templates.Loader
	fetcher  *catalog.Fetcher
	composer *composer.Composer
	pages    *caching.PageCache
	policy   caching.Policy
	opts     RenderOptions
	minifier *minify.M
	logger   *slog.Logger
	stages   []Stage
}

// NewRenderService creates a render service. pages may be nil, which
// disables page caching.
func NewRenderService(
	resolver *tenant.Resolver,
	loader *templates.Loader,
	fetcher *catalog.Fetcher,
	comp *composer.Composer,
	pages *caching.PageCache,
	policy caching.Policy,
	opts RenderOptions,
	logger *slog.Logger,
) *RenderService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &RenderService{
		resolver: resolver,
		loader:   loader,
		fetcher:  fetcher,
		composer: comp,
		pages:    pages,
		policy:   policy,
		opts:     opts.withDefaults(),
		minifier: newPageMinifier(),
		logger:   logger,
	}
	s.stages = []Stage{
		{"resolve", s.resolve},
		{"engine", s.initEngine},
		{"load", s.loadData},
		{"context", s.buildContext},
		{"cache_lookup", s.lookupCache},
		{"content", s.renderContent},
		{"layout", s.renderLayout},
		{"metadata", s.generateMetadata},
		{"cache_store", s.storeResult},
	}
	return s
}

func newPageMinifier() *minify.M {
	m := minify.New()
	m.Add("text/html", &html.Minifier{KeepDocumentTags: true, KeepEndTags: true, KeepQuotes: true})
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return m
}

// Stages lists the pipeline steps in execution order
func (s *RenderService) Stages() []string {
	names := make([]string, len(s.stages))
	for i, st := range s.stages {
		names[i] = st.Name
	}
	return names
}

// Render runs the pipeline for one request. Fatal failures are returned
// as *domain.StoreError.
func (s *RenderService) Render(ctx context.Context, req RenderRequest) (*domain.RenderResult, error) {
	start := time.Now()
	st := State{Request: req, StatusCode: http.StatusOK}

	for _, stage := range s.stages {
		next, err := s.run(ctx, stage, st)
		if err != nil {
			metrics.ObserveRender(string(st.Options.PageType), "error", time.Since(start))
			se := domain.AsStoreError(err)
			if se.Store == nil {
				se.Store = st.Store
			}
			s.logger.Error("render failed",
				slog.String("host", req.Host),
				slog.String("path", req.Path),
				slog.String("stage", stage.Name),
				slog.String("type", string(se.Type)),
				slog.String("error", err.Error()),
			)
			return nil, se
		}
		st = next
		if st.Done {
			metrics.ObserveRender(string(st.Options.PageType), "cached", time.Since(start))
			return st.Result, nil
		}
	}

	metrics.ObserveRender(string(st.Options.PageType), "rendered", time.Since(start))
	return st.Result, nil
}

func (s *RenderService) run(ctx context.Context, stage Stage, st State) (State, error) {
	ctx, span := tracing.Start(ctx, "render."+stage.Name,
		attribute.String("render.host", st.Request.Host),
		attribute.String("render.path", st.Request.Path),
	)
	start := time.Now()
	next, err := stage.Run(ctx, st)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ObserveStage(stage.Name, result, time.Since(start))
	tracing.End(span, err)
	return next, err
}
