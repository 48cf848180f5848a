package routes

import (
	"net/http"

	"github.com/AnshRaj112/bazaar-backend/internal/handlers"
	"github.com/AnshRaj112/bazaar-backend/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers bundles everything the router mounts. AdminAuth and Sessions are
// nil when admin sessions are unavailable; MessageLimit is nil when message
// sending is not rate limited.
type Handlers struct {
	Listings     *handlers.ListingHandler
	Chat         *handlers.ChatHandler
	Admin        *handlers.AdminHandler
	AdminAuth    *handlers.AdminAuthHandler
	Upload       *handlers.UploadHandler
	Live         *handlers.LiveHandler
	Sessions     middleware.SessionValidator
	MessageLimit func(http.Handler) http.Handler
}

func SetupRoutes(r chi.Router, h Handlers) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/listings", h.Listings.List)
		r.Get("/listings/{id}", h.Listings.Get)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)

			r.Post("/listings", h.Listings.Create)
			r.Put("/listings/{id}", h.Listings.Update)
			r.Delete("/listings/{id}", h.Listings.Delete)
			r.Get("/me/listings", h.Listings.Mine)

			r.Get("/listings/{id}/messages", h.Chat.Messages)
			r.Post("/listings/{id}/messages/read", h.Chat.MarkRead)
			r.Get("/me/unread", h.Chat.Unread)
			r.Get("/me/chats", h.Chat.Chats)
			r.With(optional(h.MessageLimit)).Post("/listings/{id}/messages", h.Chat.Send)

			r.Post("/upload", h.Upload.Upload)
		})

		r.Route("/admin", func(r chi.Router) {
			if h.AdminAuth == nil || h.Sessions == nil {
				r.HandleFunc("/*", adminUnavailable)
				return
			}
			r.Post("/signin", h.AdminAuth.Signin)
			r.Post("/signout", h.AdminAuth.Signout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(h.Sessions))

				r.Post("/refresh", h.AdminAuth.Refresh)
				r.Get("/dashboard", h.Admin.Dashboard)
				r.Get("/listings", h.Admin.Listings)
				r.Get("/listings/pending", h.Admin.Pending)
				r.Put("/listings/{id}", h.Admin.Edit)
				r.Put("/listings/{id}/approve", h.Admin.Approve)
				r.Put("/listings/{id}/reject", h.Admin.Reject)
				r.Delete("/listings/{id}", h.Admin.Delete)
				r.Get("/moderation-log", h.Admin.ModerationLog)
			})
		})
	})

	r.Handle("/ws/live", h.Live)
}

func optional(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

func adminUnavailable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"success":false,"message":"Admin console is not configured"}`))
}
