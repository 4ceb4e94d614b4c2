package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/language"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/security"
	"github.com/aryan0dhankhar/storefront/internal/security/auth"
	"github.com/aryan0dhankhar/storefront/internal/service"
	"github.com/aryan0dhankhar/storefront/internal/tenant"
)

// StorefrontHandler serves rendered storefront pages for every store domain
type StorefrontHandler struct {
	render   *service.RenderService
	errPages *service.ErrorRenderer
	resolver *tenant.Resolver
	tokens   *auth.TokenManager
	authz    *security.AuthorizationService
	logger   *slog.Logger
}

// NewStorefrontHandler creates a storefront handler. tokens may be nil,
// which disables editor mode.
func NewStorefrontHandler(
	render *service.RenderService,
	errPages *service.ErrorRenderer,
	resolver *tenant.Resolver,
	tokens *auth.TokenManager,
	authz *security.AuthorizationService,
	logger *slog.Logger,
) *StorefrontHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorefrontHandler{
		render:   render,
		errPages: errPages,
		resolver: resolver,
		tokens:   tokens,
		authz:    authz,
		logger:   logger,
	}
}

// ServeHTTP handles GET and HEAD for any storefront path
func (h *StorefrontHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req := service.RenderRequest{
		Host:       requestHost(r),
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		Locale:     preferredLocale(r.Header.Get("Accept-Language")),
		EditorMode: h.editorMode(r),
	}
	// the token is a credential, never part of the page identity
	req.Query.Del("studio_token")

	result, err := h.render.Render(r.Context(), req)
	if err != nil {
		result = h.errPages.Render(err, nil, r.Header.Get("Accept-Language"))
		w.Header().Set("Cache-Control", "no-store")
		writeHTML(w, r, result)
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64String(result.HTML))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", cacheControl(result))
	w.Header().Set("Vary", "Accept-Language")
	if result.StatusCode == http.StatusOK && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeHTML(w, r, result)
}

// editorMode reports whether the request carries a studio token valid for
// the store that owns the requested domain
func (h *StorefrontHandler) editorMode(r *http.Request) bool {
	token := r.URL.Query().Get("studio_token")
	if token == "" || h.tokens == nil {
		return false
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Debug("studio token rejected", slog.String("error", err.Error()))
		return false
	}
	store, err := h.resolver.ResolveDomain(r.Context(), requestHost(r))
	if err != nil || store == nil {
		return false
	}
	return h.authz.Authorize(claims, security.PermUseStudio, store.ID) == nil
}

func cacheControl(result *domain.RenderResult) string {
	if result.CacheTTL <= 0 {
		return "no-store"
	}
	return "public, max-age=" + strconv.Itoa(int(result.CacheTTL.Seconds()))
}

func writeHTML(w http.ResponseWriter, r *http.Request, result *domain.RenderResult) {
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(result.HTML)))
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(result.HTML))
	}
}

// requestHost prefers the host a fronting proxy received
func requestHost(r *http.Request) string {
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		return h
	}
	return r.Host
}

func preferredLocale(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return ""
	}
	return tags[0].String()
}
