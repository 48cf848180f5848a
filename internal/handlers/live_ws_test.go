package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AnshRaj112/bazaar-backend/internal/changefeed"
	"github.com/AnshRaj112/bazaar-backend/internal/middleware"
	"github.com/AnshRaj112/bazaar-backend/internal/models"
	"github.com/AnshRaj112/bazaar-backend/internal/services"
	"github.com/AnshRaj112/bazaar-backend/internal/store"
	"github.com/gorilla/websocket"
)

type liveFixture struct {
	server   *httptest.Server
	listings *services.ListingService
	chats    *services.ChatService
	handler  *LiveHandler
}

func newLiveFixture(t *testing.T) *liveFixture {
	t.Helper()
	mem := store.NewMemory()
	hub := changefeed.NewHub()
	listings := services.NewListingService(mem.Listings, hub, nil)
	chats := services.NewChatService(mem.Messages, hub)
	live := services.NewLiveService(listings, chats, hub, services.NewCacheService(nil), time.Minute)

	h := NewLiveHandler(live, stubSessions{"tok": "mod"}, nil)
	srv := httptest.NewServer(middleware.Identity(h))
	t.Cleanup(func() {
		h.Shutdown()
		srv.Close()
	})
	return &liveFixture{server: srv, listings: listings, chats: chats, handler: h}
}

func (f *liveFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/live?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", query, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type string          `json:"type"`
	View string          `json:"view"`
	Data json.RawMessage `json:"data"`
}

// readUntil reads frames until ok accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, ok func(frame) bool) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if ok(f) {
			return f
		}
	}
}

func listingsIn(f frame) []models.Listing {
	var ls []models.Listing
	json.Unmarshal(f.Data, &ls)
	return ls
}

func TestLiveBrowseStreamsSnapshots(t *testing.T) {
	f := newLiveFixture(t)
	conn := f.dial(t, "view=browse")

	first := readUntil(t, conn, func(fr frame) bool { return true })
	if first.Type != "snapshot" || first.View != "browse" || len(listingsIn(first)) != 0 {
		t.Fatalf("unexpected initial frame %+v", first)
	}

	ctx := context.Background()
	l, err := f.listings.Create(ctx, models.ListingInput{Title: "Lamp", UserID: "u1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.listings.Approve(ctx, services.Admin("mod"), l.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got := readUntil(t, conn, func(fr frame) bool { return len(listingsIn(fr)) == 1 })
	if listingsIn(got)[0].ID != l.ID {
		t.Fatalf("unexpected snapshot %s", got.Data)
	}
}

func TestLiveConversationFollowsMessages(t *testing.T) {
	f := newLiveFixture(t)
	conn := f.dial(t, "view=conversation&listing_id=l1&other_id=seller&user_id=buyer")
	readUntil(t, conn, func(frame) bool { return true })

	if _, err := f.chats.Send(context.Background(), models.MessageInput{ListingID: "l1", SenderID: "seller", ReceiverID: "buyer", Text: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := readUntil(t, conn, func(fr frame) bool {
		var view models.ChatView
		json.Unmarshal(fr.Data, &view)
		return len(view.Messages) == 1
	})
	var view models.ChatView
	json.Unmarshal(got.Data, &view)
	if view.UnreadCount != 1 || view.LastMessage == nil || view.LastMessage.Text != "hi" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestLiveAdminViewsNeedSession(t *testing.T) {
	f := newLiveFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/live?view=pending"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got err=%v resp=%v", err, resp)
	}

	conn := f.dial(t, "view=dashboard&token=tok")
	first := readUntil(t, conn, func(frame) bool { return true })
	if first.View != "dashboard" {
		t.Fatalf("unexpected frame %+v", first)
	}
}

func TestLiveRejectsBadRequests(t *testing.T) {
	f := newLiveFixture(t)
	cases := map[string]int{
		"":                             http.StatusBadRequest,
		"view=nope":                    http.StatusBadRequest,
		"view=listing":                 http.StatusBadRequest,
		"view=my-chats":                http.StatusUnauthorized,
		"view=conversation&user_id=u1": http.StatusBadRequest,
	}
	for query, want := range cases {
		resp, err := http.Get(f.server.URL + "/ws/live?" + query)
		if err != nil {
			t.Fatalf("get %q: %v", query, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%q: expected %d, got %d", query, want, resp.StatusCode)
		}
	}
}

func TestLiveShutdownClosesConnections(t *testing.T) {
	f := newLiveFixture(t)
	conn := f.dial(t, "view=browse")
	readUntil(t, conn, func(frame) bool { return true })

	f.handler.Shutdown()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("expected normal close, got %v", err)
			}
			return
		}
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://bazaar.example"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if !check(req) {
		t.Fatal("requests without Origin are allowed")
	}
	req.Header.Set("Origin", "https://bazaar.example")
	if !check(req) {
		t.Fatal("configured origin should pass")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Fatal("other origins should be refused")
	}
	if !originChecker([]string{"*"})(req) {
		t.Fatal("wildcard allows any origin")
	}
}
