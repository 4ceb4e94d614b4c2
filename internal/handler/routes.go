package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"

	"github.com/aryan0dhankhar/storefront/internal/observability/metrics"
	"github.com/aryan0dhankhar/storefront/internal/security"
	"github.com/aryan0dhankhar/storefront/internal/security/audit"
	"github.com/aryan0dhankhar/storefront/internal/security/auth"
	"github.com/aryan0dhankhar/storefront/internal/security/middleware"
	"github.com/aryan0dhankhar/storefront/internal/security/ratelimit"
)

// zip archives arrive under several media types depending on the client
var archiveTypes = []string{
	"application/zip",
	"application/x-zip-compressed",
	"application/octet-stream",
	"multipart/form-data",
}

// RouterConfig wires the handlers into one router
type RouterConfig struct {
	Storefront *StorefrontHandler
	Assets     *AssetHandler
	Admin      *AdminHandler
	Studio     *StudioHub
	Health     *HealthHandler
	// Metrics serves /metrics; nil leaves it unrouted
	Metrics http.Handler

	Tokens            *auth.TokenManager
	Authz             *security.AuthorizationService
	Audit             *audit.Logger
	AdminLimiter      *ratelimit.Limiter
	StorefrontLimiter *ratelimit.Limiter
	MaxUploadBytes    int64
	Logger            *slog.Logger
}

// NewRouter builds the HTTP surface: operator endpoints under /admin, the
// studio socket, theme assets under /cdn and storefront pages for every
// other path
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	require := func(p security.Permission) func(http.Handler) http.Handler {
		return middleware.RequirePermission(cfg.Authz, p, cfg.Audit)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metrics.HTTPMetricsMiddleware)
	r.Use(middleware.RejectTraversal(log))

	r.Get("/healthz", cfg.Health.Health)
	r.Get("/readyz", cfg.Health.Ready)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	r.Get("/studio/ws", cfg.Studio.ServeHTTP)

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.JWTMiddleware(cfg.Tokens, log))
		r.With(require(security.PermViewCacheStats)).Get("/cache/stats", cfg.Admin.CacheStats)

		r.Route("/stores/{storeID}", func(r chi.Router) {
			r.Use(middleware.RateLimitMiddleware(cfg.AdminLimiter, middleware.ByStoreParam, log))
			r.Use(middleware.AuditMiddleware(cfg.Audit))

			upload := r.With(
				require(security.PermInstallTheme),
				middleware.LimitBody(cfg.MaxUploadBytes),
				middleware.RequireContentType(log, archiveTypes...),
			)
			upload.Post("/theme", cfg.Admin.InstallTheme)
			upload.Post("/theme/validate", cfg.Admin.ValidateTheme)
			r.With(require(security.PermInvalidateCache)).Post("/cache/invalidate", cfg.Admin.InvalidateCache)
		})
	})

	r.Get("/cdn/templates/{storeID}/*", gzhttp.GzipHandler(cfg.Assets))

	storefront := middleware.RateLimitMiddleware(cfg.StorefrontLimiter, middleware.ByHost, log)(gzhttp.GzipHandler(cfg.Storefront))
	r.Handle("/", storefront)
	r.Handle("/*", storefront)
	return r
}
