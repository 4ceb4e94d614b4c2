package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"
)

// RequireContentType rejects request bodies whose media type is not one of
// types.
func RequireContentType(log *slog.Logger, types ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err == nil {
				for _, t := range types {
					if mediaType == t {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			log.Warn("invalid content type",
				slog.String("path", r.URL.Path),
				slog.String("content_type", r.Header.Get("Content-Type")),
				slog.String("method", r.Method),
			)
			writeError(w, http.StatusUnsupportedMediaType, "unsupported content type")
		})
	}
}

// LimitBody caps request bodies at maxBytes
func LimitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// RejectTraversal refuses paths that try to climb out of a route
func RejectTraversal(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, seg := range strings.Split(r.URL.Path, "/") {
				if seg == ".." {
					log.Warn("suspicious path pattern detected", slog.String("path", r.URL.Path))
					writeError(w, http.StatusBadRequest, "invalid path")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
