package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/catalog"
	"github.com/aryan0dhankhar/storefront/internal/composer"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/storefront/internal/ingest"
	"github.com/aryan0dhankhar/storefront/internal/repository"
	"github.com/aryan0dhankhar/storefront/internal/security"
	"github.com/aryan0dhankhar/storefront/internal/security/audit"
	"github.com/aryan0dhankhar/storefront/internal/security/auth"
	"github.com/aryan0dhankhar/storefront/internal/security/ratelimit"
	"github.com/aryan0dhankhar/storefront/internal/service"
	"github.com/aryan0dhankhar/storefront/internal/templates"
	"github.com/aryan0dhankhar/storefront/internal/tenant"
)

func theme() map[string]string {
	return map[string]string{
		"layout/theme.liquid":         `<html><head>{{ content_for_header }}</head><body>{{ content_for_layout }}</body></html>`,
		"templates/index.json":        `{"sections": {"hero": {"type": "hero"}}, "order": ["hero"]}`,
		"sections/hero.liquid":        `<h1>{{ shop.name }}</h1>`,
		"config/settings_schema.json": `[]`,
		"assets/theme.css":            `body{margin:0}`,
	}
}

type server struct {
	handler http.Handler
	tokens  *auth.TokenManager
	hub     *StudioHub
	mem     *storage.FSStore
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	mem := storage.NewMemStore()
	for p, c := range theme() {
		require.NoError(t, mem.Put(ctx, domain.TemplateKey("s1", p), []byte(c), "text/plain"))
	}

	policy := caching.DefaultPolicy()
	caches := caching.New(policy, nil)
	stores := repository.NewMemoryStoreRepository(domain.Store{
		ID: "s1", Name: "Acme", DefaultDomain: "acme.example.com", Currency: domain.DefaultCurrency(), Active: true,
	})
	cat := repository.NewMemoryCatalog()
	loader := templates.NewLoader(mem, caches, templates.Options{Timeout: time.Second}, nil)
	resolver := tenant.NewResolver(stores, caches, nil)
	fetcher := catalog.NewFetcher(catalog.Repositories{
		Products: cat.Products(), Collections: cat.Collections(), Pages: cat.Pages(),
		Navigation: cat.Navigation(), Checkouts: cat.Checkouts(),
	}, caches, time.Second, nil)
	pages, err := caching.NewPageCache(caches, nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pages.Close() })

	render := service.NewRenderService(resolver, loader, fetcher, composer.NewComposer(loader, 2, nil), pages, policy, service.RenderOptions{}, nil)
	errPages, err := service.NewErrorRenderer(false, nil)
	require.NoError(t, err)
	auditLog := audit.NewLogger(nil)
	themes := service.NewThemeService(mem, ingest.NewProcessor(ingest.DefaultOptions(), nil), loader, caches, pages, resolver, stores, auditLog, nil)

	tokens := auth.NewTokenManager("test-secret", "")
	authz := security.NewAuthorizationService(nil)
	hub := NewStudioHub(tokens, authz, nil, nil)
	themes.SetNotifier(hub)

	adminLimiter := ratelimit.NewLimiter(100, time.Minute)
	siteLimiter := ratelimit.NewLimiter(100, time.Minute)
	t.Cleanup(adminLimiter.Stop)
	t.Cleanup(siteLimiter.Stop)

	h := NewRouter(RouterConfig{
		Storefront: NewStorefrontHandler(render, errPages, resolver, tokens, authz, nil),
		Assets:     NewAssetHandler(loader, 3600, nil),
		Admin:      NewAdminHandler(themes, caches, 1<<20, nil),
		Studio:     hub,
		Health: NewHealthHandler(map[string]Check{
			"database": func(context.Context) error { return nil },
			"redis":    nil,
		}, nil),
		Tokens:            tokens,
		Authz:             authz,
		Audit:             auditLog,
		AdminLimiter:      adminLimiter,
		StorefrontLimiter: siteLimiter,
		MaxUploadBytes:    1 << 20,
	})
	return &server{handler: h, tokens: tokens, hub: hub, mem: mem}
}

func (s *server) token(t *testing.T, storeID, role string) string {
	t.Helper()
	tok, err := s.tokens.GenerateToken(storeID, "user-1", role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func storefrontRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = "acme.example.com"
	return req
}

func TestStorefrontServesCacheablePage(t *testing.T) {
	s := newServer(t)

	rec := s.do(storefrontRequest("/"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Acme</h1>")
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=1800", rec.Header().Get("Cache-Control"))

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	req := storefrontRequest("/")
	req.Header.Set("If-None-Match", etag)
	rec = s.do(req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestStorefrontUnknownStoreRendersLocalizedError(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "nobody.example.com"
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")
	rec := s.do(req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `<html lang="fr">`)
}

func TestStorefrontRejectsWrites(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Host = "acme.example.com"
	assert.Equal(t, http.StatusMethodNotAllowed, s.do(req).Code)
}

func TestStorefrontEditorMode(t *testing.T) {
	s := newServer(t)

	rec := s.do(storefrontRequest("/?studio_token=" + s.token(t, "s1", string(security.RoleEditor))))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `content="noindex"`)

	rec = s.do(storefrontRequest("/?studio_token=" + s.token(t, "other", string(security.RoleEditor))))
	assert.NotContains(t, rec.Body.String(), `content="noindex"`)
}

func TestAssets(t *testing.T) {
	s := newServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/cdn/templates/s1/assets/theme.css", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "body{margin:0}", rec.Body.String())

	for _, p := range []string{
		"/cdn/templates/s1/assets/missing.css",
		"/cdn/templates/s1/templates/index.json",
		"/cdn/templates/s1/layout/theme.liquid",
	} {
		assert.Equal(t, http.StatusNotFound, s.do(httptest.NewRequest(http.MethodGet, p, nil)).Code, p)
	}
}

func themeArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var tf []domain.ThemeFile
	for p, c := range files {
		tf = append(tf, domain.ThemeFile{Path: p, Content: []byte(c), Type: domain.FileTypeFromPath(p)})
	}
	data, err := ingest.Package(tf)
	require.NoError(t, err)
	return data
}

func installRequest(t *testing.T, token string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/admin/stores/s1/theme", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/zip")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAdminInstallRequiresPermission(t *testing.T) {
	s := newServer(t)
	archive := themeArchive(t, theme())

	assert.Equal(t, http.StatusUnauthorized, s.do(installRequest(t, "", archive)).Code)
	assert.Equal(t, http.StatusForbidden, s.do(installRequest(t, s.token(t, "s1", string(security.RoleEditor)), archive)).Code)
	assert.Equal(t, http.StatusForbidden, s.do(installRequest(t, s.token(t, "s2", string(security.RoleStoreOwner)), archive)).Code)

	rec := s.do(installRequest(t, s.token(t, "s1", string(security.RoleStoreOwner)), archive))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res service.InstallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.ThemeID)
	assert.Equal(t, len(theme()), res.Files)
}

func TestAdminInstallReportsIssues(t *testing.T) {
	s := newServer(t)
	files := theme()
	delete(files, "templates/index.json")

	rec := s.do(installRequest(t, s.token(t, "", string(security.RoleAdmin)), themeArchive(t, files)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Valid  bool           `json:"valid"`
		Issues []ingest.Issue `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Valid)
	require.NotEmpty(t, body.Issues)
	assert.Equal(t, "templates/index.json", body.Issues[0].Path)
}

func TestAdminRejectsWrongContentType(t *testing.T) {
	s := newServer(t)
	req := installRequest(t, s.token(t, "s1", string(security.RoleStoreOwner)), []byte("{}"))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusUnsupportedMediaType, s.do(req).Code)
}

func TestAdminCacheEndpoints(t *testing.T) {
	s := newServer(t)
	s.do(storefrontRequest("/"))

	req := httptest.NewRequest(http.MethodPost, "/admin/stores/s1/cache/invalidate", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, "s1", string(security.RoleStoreOwner)))
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var inv service.Invalidation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	assert.Equal(t, 1, inv.Pages)

	req = httptest.NewRequest(http.MethodGet, "/admin/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, "s1", string(security.RoleStoreOwner)))
	assert.Equal(t, http.StatusForbidden, s.do(req).Code)

	req.Header.Set("Authorization", "Bearer "+s.token(t, "", string(security.RoleAdmin)))
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"page_render"`)
}

func TestReadiness(t *testing.T) {
	s := newServer(t)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"not configured"`)

	failing := NewHealthHandler(map[string]Check{"database": func(context.Context) error { return errors.New("down") }}, nil)
	rec = httptest.NewRecorder()
	failing.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStudioReceivesThemeEvents(t *testing.T) {
	s := newServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/studio/ws?store=s1&token="
	_, resp, err := websocket.DefaultDialer.Dial(base+"bogus", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+s.token(t, "s1", string(security.RoleEditor)), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.Clients("s1") == 1 }, time.Second, 10*time.Millisecond)
	s.hub.Notify("s1", service.ThemeEvent{Type: service.EventFileChanged, StoreID: "s1", Paths: []string{"sections/hero.liquid"}})
	s.hub.Notify("s2", service.ThemeEvent{Type: service.EventFileChanged, StoreID: "s2"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev service.ThemeEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, service.EventFileChanged, ev.Type)
	assert.Equal(t, "s1", ev.StoreID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var pong map[string]string
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])
}
