package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/portfolio/internal/logger"
	"github.com/portfolio/internal/token"
)

// bearerToken extracts the credential from the Authorization header, falling
// back to the "token" query parameter for WebSocket handshakes, where
// browsers cannot set headers.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

// RequireAuth rejects requests without a valid token. The body is identical
// for missing and invalid credentials; the distinction lives in the logs only.
func RequireAuth(svc *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				logger.Infof("auth: missing token %s %s", r.Method, r.URL.Path)
				writeUnauthorized(w)
				return
			}
			userID, err := svc.Validate(raw)
			if err != nil {
				logger.Infof("auth: invalid token %s (%v) %s %s", MaskToken(raw), err, r.Method, r.URL.Path)
				writeUnauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the user id when a valid token is present and passes
// the request through anonymously otherwise.
func OptionalAuth(svc *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := bearerToken(r); raw != "" {
				if userID, err := svc.Validate(raw); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), UserIDKey, userID))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
