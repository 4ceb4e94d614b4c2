package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/internal/ingest"
	"github.com/aryan0dhankhar/storefront/internal/observability/metrics"
	"github.com/aryan0dhankhar/storefront/internal/security/audit"
	"github.com/aryan0dhankhar/storefront/internal/templates"
	"github.com/aryan0dhankhar/storefront/internal/tenant"
)

// Theme event types pushed to studio clients
const (
	EventThemeInstalled   = "theme_installed"
	EventFileChanged      = "file_changed"
	EventCacheInvalidated = "cache_invalidated"
)

// ThemeEvent tells editors a store's theme changed
type ThemeEvent struct {
	Type    string    `json:"type"`
	StoreID string    `json:"storeId"`
	ThemeID string    `json:"themeId,omitempty"`
	Paths   []string  `json:"paths,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier delivers theme events to connected editors
type Notifier interface {
	Notify(storeID string, event ThemeEvent)
}

// Invalidation counts the entries dropped for a store
type Invalidation struct {
	Templates int `json:"templates"`
	Entries   int `json:"entries"`
	Pages     int `json:"pages"`
}

// InstallResult describes an installed theme
type InstallResult struct {
	ThemeID     string         `json:"themeId"`
	Files       int            `json:"files"`
	Removed     int            `json:"removed"`
	Warnings    []ingest.Issue `json:"warnings"`
	Stats       ingest.Stats   `json:"stats"`
	Invalidated Invalidation   `json:"invalidated"`
}

// ThemeService installs themes and keeps every cache layer consistent with
// object storage.
type ThemeService struct {
	storage   domain.ObjectStorage
	processor *ingest.Processor
	loader    *templates.Loader
	caches    *caching.Caches
	pages     *caching.PageCache
	resolver  *tenant.Resolver
	stores    domain.StoreRepository
	audit     *audit.Logger
	notifier  Notifier
	logger    *slog.Logger
}

// NewThemeService creates a theme service. pages may be nil.
func NewThemeService(
	storage domain.ObjectStorage,
	processor *ingest.Processor,
	loader *templates.Loader,
	caches *caching.Caches,
	pages *caching.PageCache,
	resolver *tenant.Resolver,
	stores domain.StoreRepository,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *ThemeService {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	return &ThemeService{
		storage:   storage,
		processor: processor,
		loader:    loader,
		caches:    caches,
		pages:     pages,
		resolver:  resolver,
		stores:    stores,
		audit:     auditLog,
		logger:    logger,
	}
}

// SetNotifier attaches the studio hub. Events are dropped until one is set.
func (s *ThemeService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Install validates a theme archive and replaces the store's theme with it.
// Files of the previous theme that the new one lacks are removed.
func (s *ThemeService) Install(ctx context.Context, storeID string, archive []byte, actor string) (*InstallResult, error) {
	theme, err := s.processor.ProcessThemeZip(archive, storeID)
	if err != nil {
		metrics.ObserveThemeInstall("rejected")
		s.audit.LogThemeInstall(ctx, storeID, actor, "", "rejected", err.Error())
		return nil, err
	}

	// 1. Write the new files
	written := make(map[string]bool, len(theme.Files))
	for _, f := range theme.Files {
		key := domain.TemplateKey(storeID, f.Path)
		if err := s.storage.Put(ctx, key, f.Content, f.ContentType()); err != nil {
			metrics.ObserveThemeInstall("error")
			s.audit.LogThemeInstall(ctx, storeID, actor, theme.ID, "failed", err.Error())
			return nil, fmt.Errorf("failed to store %s: %w", f.Path, err)
		}
		written[key] = true
	}

	// 2. Remove leftovers of the previous theme
	removed, err := s.prune(ctx, storeID, written)
	if err != nil {
		s.logger.Warn("failed to remove stale theme files",
			slog.String("store_id", storeID),
			slog.String("error", err.Error()),
		)
	}

	// 3. Drop everything cached for the store
	inv := s.InvalidateStore(ctx, storeID)

	metrics.ObserveThemeInstall("installed")
	s.audit.LogThemeInstall(ctx, storeID, actor, theme.ID, "success",
		fmt.Sprintf("%d files, %d warnings", len(theme.Files), len(theme.Warnings)))
	s.notify(storeID, ThemeEvent{Type: EventThemeInstalled, StoreID: storeID, ThemeID: theme.ID})

	s.logger.Info("theme installed",
		slog.String("store_id", storeID),
		slog.String("theme_id", theme.ID),
		slog.Int("files", len(theme.Files)),
		slog.Int("removed", removed),
	)
	return &InstallResult{
		ThemeID:     theme.ID,
		Files:       len(theme.Files),
		Removed:     removed,
		Warnings:    theme.Warnings,
		Stats:       theme.Stats,
		Invalidated: inv,
	}, nil
}

func (s *ThemeService) prune(ctx context.Context, storeID string, keep map[string]bool) (int, error) {
	keys, err := s.storage.List(ctx, domain.TemplatePrefix(storeID))
	if err != nil {
		return 0, err
	}
	var errs []error
	removed := 0
	for _, key := range keys {
		if keep[key] {
			continue
		}
		if err := s.storage.Delete(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// InvalidateStore drops the store's templates, compiled engines, cached
// data, rendered pages and domain lookups.
func (s *ThemeService) InvalidateStore(ctx context.Context, storeID string) Invalidation {
	// pages first: the local page tier is one of the cache categories
	var inv Invalidation
	if s.pages != nil {
		inv.Pages = s.pages.InvalidateStore(ctx, storeID)
	}
	inv.Templates = s.loader.InvalidateStore(storeID)
	inv.Entries = s.caches.InvalidateStore(storeID)
	if s.resolver != nil && s.stores != nil {
		store, err := s.stores.GetByID(ctx, storeID)
		if err == nil {
			s.resolver.Invalidate(store)
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to load store for invalidation",
				slog.String("store_id", storeID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.Info("store caches invalidated",
		slog.String("store_id", storeID),
		slog.Int("templates", inv.Templates),
		slog.Int("entries", inv.Entries),
		slog.Int("pages", inv.Pages),
	)
	return inv
}

// FileChanged handles an edit to one stored theme file
func (s *ThemeService) FileChanged(ctx context.Context, storeID, filePath string) {
	s.InvalidateStore(ctx, storeID)
	s.notify(storeID, ThemeEvent{Type: EventFileChanged, StoreID: storeID, Paths: []string{strings.TrimPrefix(filePath, "/")}})
}

// ClearStore is the operator-triggered invalidation
func (s *ThemeService) ClearStore(ctx context.Context, storeID, actor string) Invalidation {
	inv := s.InvalidateStore(ctx, storeID)
	s.audit.LogCacheInvalidation(ctx, storeID, actor,
		fmt.Sprintf("templates=%d entries=%d pages=%d", inv.Templates, inv.Entries, inv.Pages))
	s.notify(storeID, ThemeEvent{Type: EventCacheInvalidated, StoreID: storeID})
	return inv
}

func (s *ThemeService) notify(storeID string, ev ThemeEvent) {
	if s.notifier == nil {
		return
	}
	ev.At = time.Now()
	s.notifier.Notify(storeID, ev)
}

// Validate runs the ingestion checks on archive without storing anything
func (s *ThemeService) Validate(archive []byte, storeID string) (*ingest.ProcessedTheme, error) {
	return s.processor.ProcessThemeZip(archive, storeID)
}
