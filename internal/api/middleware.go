package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shohag/webhookd/internal/auth"
)

type contextKey string

const claimsContextKey contextKey = "claims"

func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims
}

// AuthMiddleware requires a workspace bearer token. A nil token service
// disables authentication.
func AuthMiddleware(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}

			raw := strings.TrimPrefix(header, "Bearer ")
			if raw == header {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization format, use: Bearer <token>")
				return
			}

			claims, err := tokens.Validate(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WorkspaceScope rejects tokens issued for a workspace other than the one
// in the route.
func WorkspaceScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorizeWorkspace(w, r, chi.URLParam(r, "workspaceID")) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authorizeWorkspace(w http.ResponseWriter, r *http.Request, workspaceID string) bool {
	claims := ClaimsFromContext(r.Context())
	if claims == nil || claims.WorkspaceID == workspaceID {
		return true
	}
	writeError(w, http.StatusForbidden, CodeForbidden, "token is not valid for this workspace")
	return false
}

func LoggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.statusCode).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the connection.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
