package handlers

import (
	"context"
	"net/http"

	"github.com/AnshRaj112/bazaar-backend/internal/middleware"
	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"github.com/go-chi/chi/v5"
)

type chatService interface {
	Messages(ctx context.Context, listingID, userID, otherID string) ([]models.Message, error)
	Send(ctx context.Context, in models.MessageInput) (*models.Message, error)
	MarkRead(ctx context.Context, listingID, readerID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	CountUnreadForListing(ctx context.Context, listingID, userID string) (int64, error)
	ChatListingIDs(ctx context.Context, userID string) ([]string, error)
}

type ChatHandler struct {
	service chatService
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

func NewChatHandler(service chatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// Messages returns the caller's conversation on a listing, oldest first.
// ?other_id narrows it to one counterpart.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	userID := middleware.UserID(r.Context())
	listingID := chi.URLParam(r, "id")
	otherID := r.URL.Query().Get("other_id")

	msgs, err := h.service.Messages(ctx, listingID, userID, otherID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	view := models.NewChatView(listingID, userID, otherID, msgs)
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":    view.Messages,
		"unreadCount": view.UnreadCount,
	})
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()

	msg, err := h.service.Send(ctx, models.MessageInput{
		ListingID:  chi.URLParam(r, "id"),
		SenderID:   middleware.UserID(r.Context()),
		ReceiverID: req.ReceiverID,
		Text:       req.Text,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	n, err := h.service.MarkRead(ctx, chi.URLParam(r, "id"), middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": n})
}

// Unread counts the caller's unread messages; ?listing_id scopes it to one listing.
func (h *ChatHandler) Unread(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	userID := middleware.UserID(r.Context())
	var (
		n   int64
		err error
	)
	if listingID := r.URL.Query().Get("listing_id"); listingID != "" {
		n, err = h.service.CountUnreadForListing(ctx, listingID, userID)
	} else {
		n, err = h.service.CountUnread(ctx, userID)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": n})
}

func (h *ChatHandler) Chats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	ids, err := h.service.ChatListingIDs(ctx, middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listingIds": ids})
}
