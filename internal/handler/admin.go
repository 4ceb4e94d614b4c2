package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/ingest"
	"github.com/aryan0dhankhar/storefront/internal/security/middleware"
	"github.com/aryan0dhankhar/storefront/internal/service"
)

// AdminHandler exposes theme installation and cache control to operators
type AdminHandler struct {
	themes    *service.ThemeService
	caches    *caching.Caches
	maxUpload int64
	logger    *slog.Logger
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(themes *service.ThemeService, caches *caching.Caches, maxUpload int64, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{themes: themes, caches: caches, maxUpload: maxUpload, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func actor(r *http.Request) string {
	if c := middleware.GetClaimsFromContext(r.Context()); c != nil {
		return c.Subject
	}
	return ""
}

// InstallTheme handles POST /admin/stores/{storeID}/theme
func (h *AdminHandler) InstallTheme(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	archive, err := h.readArchive(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.themes.Install(r.Context(), storeID, archive, actor(r))
	if err != nil {
		h.writeIngestError(w, storeID, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ValidateTheme handles POST /admin/stores/{storeID}/theme/validate. It
// reports what an install would do without storing anything.
func (h *AdminHandler) ValidateTheme(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	archive, err := h.readArchive(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	theme, err := h.themes.Validate(archive, storeID)
	if err != nil {
		h.writeIngestError(w, storeID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "theme": theme})
}

func (h *AdminHandler) writeIngestError(w http.ResponseWriter, storeID string, err error) {
	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"valid": false, "issues": verr.Issues})
		return
	}
	h.logger.Error("theme ingestion failed",
		slog.String("store_id", storeID),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "theme ingestion failed"})
}

// readArchive accepts a raw zip body or a multipart form with a "theme" file
func (h *AdminHandler) readArchive(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, h.maxUpload)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = body
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			return nil, errors.New("invalid multipart upload")
		}
		f, _, err := r.FormFile("theme")
		if err != nil {
			return nil, errors.New(`missing "theme" file`)
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.New("theme archive too large")
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty theme archive")
	}
	return data, nil
}

// InvalidateCache handles POST /admin/stores/{storeID}/cache/invalidate
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	inv := h.themes.ClearStore(r.Context(), chi.URLParam(r, "storeID"), actor(r))
	writeJSON(w, http.StatusOK, inv)
}

// CacheStats handles GET /admin/cache/stats
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.caches.Stats())
}
