package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/AnshRaj112/bazaar-backend/internal/middleware"
	"github.com/AnshRaj112/bazaar-backend/internal/services"
)

type adminSessionService interface {
	SignIn(ctx context.Context, name, key string) (string, error)
	Refresh(ctx context.Context, token string) error
	Invalidate(ctx context.Context, token string) error
}

type AdminAuthHandler struct {
	sessions adminSessionService
}

type adminSigninRequest struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

func NewAdminAuthHandler(sessions adminSessionService) *AdminAuthHandler {
	return &AdminAuthHandler{sessions: sessions}
}

// Signin exchanges the admin key for a session token.
func (h *AdminAuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req adminSigninRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeMessage(w, http.StatusBadRequest, "Admin key is required")
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	token, err := h.sessions.SignIn(ctx, strings.TrimSpace(req.Name), req.Key)
	if errors.Is(err, services.ErrInvalidAdminKey) {
		middleware.Logger(r.Context()).Warn("admin sign-in rejected", "name", req.Name)
		writeMessage(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Signed in",
		"token":   token,
	})
}

func (h *AdminAuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	token := middleware.AdminToken(r)
	if token == "" {
		writeMessage(w, http.StatusBadRequest, "Session token is required")
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	if err := h.sessions.Invalidate(ctx, token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Signed out")
}

// Refresh restarts the 7-day timer of the caller's session.
func (h *AdminAuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	if err := h.sessions.Refresh(ctx, middleware.AdminToken(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Session extended")
}
