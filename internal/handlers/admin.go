package handlers

import (
	"context"
	"net/http"

	"github.com/AnshRaj112/bazaar-backend/internal/middleware"
	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"github.com/AnshRaj112/bazaar-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type moderationService interface {
	ListAll(ctx context.Context) ([]models.Listing, error)
	ModerationQueue(ctx context.Context) ([]services.PendingItem, error)
	Update(ctx context.Context, actor services.Actor, id string, patch models.ListingPatch) (*models.Listing, error)
	Delete(ctx context.Context, actor services.Actor, id string) (bool, error)
	Approve(ctx context.Context, admin services.Actor, id string) (*models.Listing, error)
	Reject(ctx context.Context, admin services.Actor, id, reason string) (*models.Listing, error)
	ModerationLog(ctx context.Context, listingID string, limit int) ([]models.ModerationEvent, error)
}

type dashboardService interface {
	DashboardCounts(ctx context.Context) (models.DashboardCounts, error)
}

// AdminHandler serves the moderation console. Routes sit behind RequireAdmin.
type AdminHandler struct {
	listings  moderationService
	dashboard dashboardService
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func NewAdminHandler(listings moderationService, dashboard dashboardService) *AdminHandler {
	return &AdminHandler{listings: listings, dashboard: dashboard}
}

func adminActor(r *http.Request) services.Actor {
	return services.Admin(middleware.AdminName(r.Context()))
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	counts, err := h.dashboard.DashboardCounts(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func (h *AdminHandler) Listings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	listings, err := h.listings.ListAll(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings, "count": len(listings)})
}

// Pending returns the moderation queue with screening flags.
func (h *AdminHandler) Pending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	queue, err := h.listings.ModerationQueue(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": queue, "count": len(queue)})
}

func (h *AdminHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var patch models.ListingPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	listing, err := h.listings.Update(ctx, adminActor(r), chi.URLParam(r, "id"), patch)
	h.respondListing(w, r, listing, err)
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	listing, err := h.listings.Approve(ctx, adminActor(r), chi.URLParam(r, "id"))
	h.respondListing(w, r, listing, err)
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	listing, err := h.listings.Reject(ctx, adminActor(r), chi.URLParam(r, "id"), req.Reason)
	h.respondListing(w, r, listing, err)
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	if _, err := h.listings.Delete(ctx, adminActor(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Listing deleted")
}

func (h *AdminHandler) ModerationLog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	events, err := h.listings.ModerationLog(ctx, r.URL.Query().Get("listing_id"), queryInt(r, "limit", 100))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (h *AdminHandler) respondListing(w http.ResponseWriter, r *http.Request, listing *models.Listing, err error) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if listing == nil {
		writeMessage(w, http.StatusNotFound, "Listing not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": listing})
}
