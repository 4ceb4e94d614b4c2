package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/storefront/internal/caching"
	"github.com/aryan0dhankhar/storefront/internal/observability/metrics"
)

// CacheSweeper periodically evicts expired cache entries and publishes the
// per-category entry counts
type CacheSweeper struct {
	caches   *caching.Caches
	logger   *slog.Logger
	interval time.Duration
}

// NewCacheSweeper creates a sweeper
func NewCacheSweeper(caches *caching.Caches, logger *slog.Logger, interval time.Duration) *CacheSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &CacheSweeper{caches: caches, logger: logger, interval: interval}
}

// Start runs the sweep loop until ctx is cancelled
func (w *CacheSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("cache sweeper started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cache sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep evicts expired entries once and returns how many were removed
func (w *CacheSweeper) Sweep() int {
	removed := 0
	attrs := []any{}
	for cat, n := range w.caches.CleanExpired() {
		removed += n
		if n > 0 {
			attrs = append(attrs, slog.Int(string(cat), n))
		}
	}
	for cat, st := range w.caches.Stats() {
		metrics.SetCacheEntries(string(cat), st.Active)
	}
	if removed > 0 {
		w.logger.Debug("expired cache entries evicted", append(attrs, slog.Int("total", removed))...)
	}
	return removed
}
