package middleware

import (
	"context"
	"net/http"
	"strings"
)

// SessionValidator resolves an admin session token to the admin's name.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (string, bool, error)
}

const adminNameKey = ctxKey("admin_name")

// RequireAdmin accepts an "Authorization: Bearer <token>" header or, for
// WebSocket upgrades, a token query parameter.
func RequireAdmin(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, ok := AuthenticateAdmin(r, sessions)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Admin session required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAdminName(r.Context(), name)))
		})
	}
}

// AuthenticateAdmin validates the request's admin token without writing a response.
func AuthenticateAdmin(r *http.Request, sessions SessionValidator) (string, bool) {
	if sessions == nil {
		return "", false
	}
	token := AdminToken(r)
	if token == "" {
		return "", false
	}
	name, ok, err := sessions.Validate(r.Context(), token)
	if err != nil {
		Logger(r.Context()).Error("validate admin session", "error", err)
		return "", false
	}
	return name, ok
}

func AdminToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func WithAdminName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, adminNameKey, name)
}

// AdminName returns the signed-in admin, or "" outside RequireAdmin.
func AdminName(ctx context.Context) string {
	name, _ := ctx.Value(adminNameKey).(string)
	return name
}
