// Package middleware holds the HTTP guards for admin, studio and storefront
// routes.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/storefront/internal/security"
	"github.com/aryan0dhankhar/storefront/internal/security/audit"
	"github.com/aryan0dhankhar/storefront/internal/security/auth"
	"github.com/aryan0dhankhar/storefront/internal/security/ratelimit"
	"github.com/aryan0dhankhar/storefront/internal/tenant"
)

type ClaimsContextKey struct{}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// JWTMiddleware rejects requests without a valid token and stores the
// claims in the request context.
func JWTMiddleware(tm *auth.TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := auth.TokenFromRequest(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "missing auth")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				log.Warn("token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission checks the caller's claims against perm for the store
// named by the storeID route parameter.
func RequirePermission(authz *security.AuthorizationService, perm security.Permission, auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			storeID := chi.URLParam(r, "storeID")
			claims := GetClaimsFromContext(r.Context())
			if err := authz.Authorize(claims, perm, storeID); err != nil {
				actor := ""
				if claims != nil {
					actor = claims.Subject
				}
				auditLog.LogDenied(r.Context(), storeID, actor, err.Error())
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// KeyFunc picks the rate-limit bucket of a request
type KeyFunc func(r *http.Request) string

// ByHost buckets storefront traffic per store domain
func ByHost(r *http.Request) string {
	return tenant.NormalizeHost(r.Host)
}

// ByStoreParam buckets admin traffic per target store
func ByStoreParam(r *http.Request) string {
	return chi.URLParam(r, "storeID")
}

func RateLimitMiddleware(limiter *ratelimit.Limiter, key KeyFunc, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if !limiter.Allow(k) {
				log.Warn("rate limit exceeded", slog.String("key", k), slog.String("path", r.URL.Path))
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.RetryAfter(k).Seconds())+1))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records every mutating admin request
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodDelete {
				actor := ""
				if c := GetClaimsFromContext(r.Context()); c != nil {
					actor = c.Subject
				}
				auditLog.LogAction(r.Context(), chi.URLParam(r, "storeID"), actor, r.Method, "api", r.URL.Path, "initiated", "")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(ClaimsContextKey{}).(*auth.Claims); ok {
		return c
	}
	return nil
}
