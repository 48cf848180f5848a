package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/AnshRaj112/bazaar-backend/internal/changefeed"
	"github.com/AnshRaj112/bazaar-backend/internal/middleware"
	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"github.com/AnshRaj112/bazaar-backend/internal/services"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	liveReadDeadline = 90 * time.Second
	livePingInterval = 30 * time.Second
	liveWriteTimeout = 10 * time.Second
)

type liveService interface {
	Browse(ctx context.Context) *changefeed.Subscription[[]models.Listing]
	MyListings(ctx context.Context, ownerID string) *changefeed.Subscription[[]models.Listing]
	Listing(ctx context.Context, id string) *changefeed.Subscription[*models.Listing]
	Pending(ctx context.Context) *changefeed.Subscription[[]services.PendingItem]
	AllListings(ctx context.Context) *changefeed.Subscription[[]models.Listing]
	Conversation(ctx context.Context, listingID, userID, otherID string) *changefeed.Subscription[models.ChatView]
	MyChats(ctx context.Context, userID string) *changefeed.Subscription[[]models.ChatSummary]
	Dashboard(ctx context.Context) *changefeed.Subscription[models.DashboardCounts]
}

// LiveHandler streams view snapshots over WebSocket. Every change to a view's
// data produces a complete new snapshot; clients replace, never merge.
type LiveHandler struct {
	live     liveService
	sessions middleware.SessionValidator
	upgrader websocket.Upgrader

	base     context.Context
	shutdown context.CancelFunc
}

type liveFrame struct {
	Type string `json:"type"`
	View string `json:"view"`
	Data any    `json:"data"`
}

// liveRequest is a validated view request.
type liveRequest struct {
	view      string
	userID    string
	id        string
	listingID string
	otherID   string
}

func NewLiveHandler(live liveService, sessions middleware.SessionValidator, allowedOrigins []string) *LiveHandler {
	base, shutdown := context.WithCancel(context.Background())
	return &LiveHandler{
		base:     base,
		shutdown: shutdown,
		live:     live,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Shutdown closes every open live connection with a normal close frame.
func (h *LiveHandler) Shutdown() {
	h.shutdown()
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browser requests from the allowed origins. An empty list or "*"
// allows any origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, status, msg := h.parse(r)
	if status != 0 {
		writeMessage(w, status, msg)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	log := middleware.Logger(r.Context()).With("conn_id", connID, "view", req.view)
	log.Info("live view opened", "user_id", req.userID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.base, cancel)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- h.stream(ctx, conn, req)
		cancel()
		// Give the client a moment to answer the close frame, then unblock the reader.
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	}()

	conn.SetReadLimit(4 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(liveReadDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(liveReadDeadline))
	})
	for {
		// Clients only send pongs and close frames; anything else is discarded.
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	cancel()
	if err := <-done; err != nil {
		log.Debug("live writer stopped", "error", err)
	}
	log.Info("live view closed")
}

func (h *LiveHandler) parse(r *http.Request) (liveRequest, int, string) {
	q := r.URL.Query()
	req := liveRequest{
		view:      q.Get("view"),
		userID:    middleware.UserID(r.Context()),
		id:        q.Get("id"),
		listingID: q.Get("listing_id"),
		otherID:   q.Get("other_id"),
	}

	switch req.view {
	case "browse":
	case "listing":
		if req.id == "" {
			return req, http.StatusBadRequest, "id is required"
		}
	case "my-listings", "my-chats":
		if req.userID == "" {
			return req, http.StatusUnauthorized, "user_id is required"
		}
	case "conversation":
		if req.userID == "" {
			return req, http.StatusUnauthorized, "user_id is required"
		}
		if req.listingID == "" {
			return req, http.StatusBadRequest, "listing_id is required"
		}
	case "pending", "admin-listings", "dashboard":
		if _, ok := middleware.AuthenticateAdmin(r, h.sessions); !ok {
			return req, http.StatusUnauthorized, "Admin session required"
		}
	case "":
		return req, http.StatusBadRequest, "view is required"
	default:
		return req, http.StatusBadRequest, "unknown view"
	}
	return req, 0, ""
}

func (h *LiveHandler) stream(ctx context.Context, conn *websocket.Conn, req liveRequest) error {
	switch req.view {
	case "browse":
		return pump(ctx, conn, req.view, h.live.Browse(ctx))
	case "listing":
		return pump(ctx, conn, req.view, h.live.Listing(ctx, req.id))
	case "my-listings":
		return pump(ctx, conn, req.view, h.live.MyListings(ctx, req.userID))
	case "conversation":
		return pump(ctx, conn, req.view, h.live.Conversation(ctx, req.listingID, req.userID, req.otherID))
	case "my-chats":
		return pump(ctx, conn, req.view, h.live.MyChats(ctx, req.userID))
	case "pending":
		return pump(ctx, conn, req.view, h.live.Pending(ctx))
	case "admin-listings":
		return pump(ctx, conn, req.view, h.live.AllListings(ctx))
	case "dashboard":
		return pump(ctx, conn, req.view, h.live.Dashboard(ctx))
	}
	return nil
}

// pump is the connection's only writer: snapshots and keepalive pings.
func pump[T any](ctx context.Context, conn *websocket.Conn, view string, sub *changefeed.Subscription[T]) error {
	defer sub.Cancel()

	ticker := time.NewTicker(livePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return nil
		case snapshot, ok := <-sub.C:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(liveFrame{Type: "snapshot", View: view, Data: snapshot}); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return err
			}
		}
	}
}
