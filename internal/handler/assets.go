package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/templates"
)

// AssetHandler serves theme assets under /cdn/templates/{storeID}/
type AssetHandler struct {
	loader *templates.Loader
	maxAge int
	logger *slog.Logger
}

// NewAssetHandler creates an asset handler
func NewAssetHandler(loader *templates.Loader, maxAge int, logger *slog.Logger) *AssetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetHandler{loader: loader, maxAge: maxAge, logger: logger}
}

// ServeHTTP handles GET /cdn/templates/{storeID}/{assets|files}/*
func (h *AssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	rel := path.Clean("/" + chi.URLParam(r, "*"))[1:]
	dir, _, _ := strings.Cut(rel, "/")
	if storeID == "" || (dir != "assets" && dir != "files") || path.Ext(rel) == ".liquid" {
		http.NotFound(w, r)
		return
	}

	data, err := h.loader.LoadAsset(r.Context(), storeID, rel)
	if err != nil {
		if templates.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("failed to load asset",
			slog.String("store_id", storeID),
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
		http.Error(w, "asset unavailable", http.StatusBadGateway)
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(data))
	f := domain.ThemeFile{Path: rel, Type: domain.FileTypeFromPath(rel)}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(h.maxAge))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	_, _ = w.Write(data)
}
