package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Logger writes audit records for operator actions
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

func (al *Logger) LogAction(ctx context.Context, storeID, actor, action, resource, resourceID, status, details string) {
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("store_id", storeID),
		slog.String("actor", actor),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogThemeInstall(ctx context.Context, storeID, actor, themeID, status, details string) {
	al.LogAction(ctx, storeID, actor, "install", "theme", themeID, status, details)
}

func (al *Logger) LogCacheInvalidation(ctx context.Context, storeID, actor, details string) {
	al.LogAction(ctx, storeID, actor, "invalidate", "cache", storeID, "success", details)
}

func (al *Logger) LogDenied(ctx context.Context, storeID, actor, reason string) {
	al.LogAction(ctx, storeID, actor, "access_denied", "api", "", "denied", reason)
}
