package replica

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/readwellapp/readwell-sync/internal/http/response"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const contextKeyUserID contextKey = "user_id"

// requireAuth validates the bearer token and pins the request to the token's
// subject: a client may only read or write its own snapshot.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.Unauthorized(w, "missing authorization header", s.logger)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(w, "invalid authorization header format", s.logger)
			return
		}

		claims, err := s.tokens.VerifyAccessToken(parts[1])
		if err != nil {
			response.Unauthorized(w, "invalid or expired token", s.logger)
			return
		}

		if pathUser := chi.URLParam(r, "userID"); pathUser != claims.UserID {
			response.Forbidden(w, "snapshot belongs to another user", s.logger)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit caps snapshot traffic per user. Must run after requireAuth so
// the key reflects the authenticated subject, not a spoofable header.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := getUserID(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}

		if !s.limiter.Allow(key) {
			s.logger.Warn("rate limit exceeded", "user_id", key, "path", r.URL.Path)
			response.TooManyRequests(w, "too many requests, slow down", s.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getUserID extracts the authenticated user ID from request context.
func getUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(contextKeyUserID).(string); ok {
		return userID
	}
	return ""
}
