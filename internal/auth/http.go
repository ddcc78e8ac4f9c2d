// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts the bearer token, adds the session to context and gates admin routes

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// RoleChecker answers role questions from live user data rather than token claims.
type RoleChecker interface {
	IsAdmin(ctx context.Context, uid string) (bool, error)
	IsSuperAdmin(uid string) bool
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// WriteError writes the API error envelope.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": message})
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates JWT tokens.
// A nil logger disables auth failure logging.
func HTTPAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logHTTPAuthFailure(logger, r, errMsg)
				WriteError(w, http.StatusUnauthorized, errMsg)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logHTTPAuthFailure(logger, r, err.Error())
				WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			authCtx := &AuthContext{UID: claims.UID, IsAdmin: claims.IsAdmin}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireAdminHTTP creates an HTTP middleware that requires the caller to
// currently hold the admin tag. Must be used after HTTPAuthMiddleware.
func RequireAdminHTTP(roles RoleChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				WriteError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			ok, err := roles.IsAdmin(r.Context(), authCtx.UID)
			if err != nil || !ok {
				WriteError(w, http.StatusForbidden, "admin role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperAdminHTTP requires a configured super admin who also holds the admin tag.
func RequireSuperAdminHTTP(roles RoleChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				WriteError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			if !roles.IsSuperAdmin(authCtx.UID) {
				WriteError(w, http.StatusForbidden, "super admin role required")
				return
			}
			ok, err := roles.IsAdmin(r.Context(), authCtx.UID)
			if err != nil || !ok {
				WriteError(w, http.StatusForbidden, "super admin role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func logHTTPAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("auth failure", "reason", reason, "remote_addr", r.RemoteAddr, "path", r.URL.Path)
}
