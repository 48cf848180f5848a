package handlers

import (
	"context"
	"net/http"

	"github.com/AnshRaj112/bazaar-backend/internal/middleware"
	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"github.com/AnshRaj112/bazaar-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type listingService interface {
	ListAll(ctx context.Context) ([]models.Listing, error)
	ListActive(ctx context.Context) ([]models.Listing, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Listing, error)
	Get(ctx context.Context, id string) (*models.Listing, error)
	Create(ctx context.Context, in models.ListingInput) (*models.Listing, error)
	Update(ctx context.Context, actor services.Actor, id string, patch models.ListingPatch) (*models.Listing, error)
	Delete(ctx context.Context, actor services.Actor, id string) (bool, error)
}

type ListingHandler struct {
	service listingService
}

func NewListingHandler(service listingService) *ListingHandler {
	return &ListingHandler{service: service}
}

// List serves active listings; ?all=1 includes every status.
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	var (
		listings []models.Listing
		err      error
	)
	if all := r.URL.Query().Get("all"); all == "1" || all == "true" {
		listings, err = h.service.ListAll(ctx)
	} else {
		listings, err = h.service.ListActive(ctx)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings, "count": len(listings)})
}

func (h *ListingHandler) Mine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	listings, err := h.service.ListByOwner(ctx, middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings, "count": len(listings)})
}

func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	listing, err := h.service.Get(ctx, chi.URLParam(r, "id"))
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

// Create stores a new listing for the caller. The owner always comes from the
// asserted identity, never from the body.
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.ListingInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.UserID = middleware.UserID(r.Context())

	ctx, cancel := withTimeout(r)
	defer cancel()

	listing, err := h.service.Create(ctx, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Listing submitted for review",
		"listing": listing,
	})
}

func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch models.ListingPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	actor := services.Actor{UserID: middleware.UserID(r.Context())}
	listing, err := h.service.Update(ctx, actor, chi.URLParam(r, "id"), patch)
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

func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	actor := services.Actor{UserID: middleware.UserID(r.Context())}
	if _, err := h.service.Delete(ctx, actor, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Listing deleted")
}
