package changefeed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func recv[T any](t *testing.T, c <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-c:
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	var zero T
	return zero
}

func TestHubBroadcastOnlyMatchingCollections(t *testing.T) {
	hub := NewHub()
	listings, unsubListings := hub.Subscribe("listings")
	defer unsubListings()
	messages, unsubMessages := hub.Subscribe("messages")
	defer unsubMessages()

	hub.Broadcast(NewChange("listings", "a", OpInsert))

	select {
	case <-listings:
	default:
		t.Fatalf("listings watcher should be signalled")
	}
	select {
	case <-messages:
		t.Fatalf("messages watcher must not be signalled")
	default:
	}
}

func TestHubBroadcastCoalesces(t *testing.T) {
	hub := NewHub()
	signal, unsub := hub.Subscribe("listings")
	defer unsub()

	for i := 0; i < 10; i++ {
		hub.Broadcast(NewChange("listings", "", OpUpdate))
	}
	<-signal
	select {
	case <-signal:
		t.Fatalf("expected a single coalesced signal")
	default:
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	_, unsub := hub.Subscribe("listings")
	if hub.Len() != 1 {
		t.Fatalf("expected 1 watcher")
	}
	unsub()
	unsub()
	if hub.Len() != 0 {
		t.Fatalf("expected 0 watchers after unsubscribe, got %d", hub.Len())
	}
}

func TestWatchDeliversInitialSnapshotAndRequeries(t *testing.T) {
	hub := NewHub()
	var calls atomic.Int64
	sub := Watch(context.Background(), hub, func(context.Context) (int64, error) {
		return calls.Add(1), nil
	}, "listings")
	defer sub.Cancel()

	if got := recv(t, sub.C); got != 1 {
		t.Fatalf("expected initial snapshot 1, got %d", got)
	}
	hub.Broadcast(NewChange("listings", "x", OpUpdate))
	if got := recv(t, sub.C); got != 2 {
		t.Fatalf("expected re-queried snapshot 2, got %d", got)
	}

	hub.Broadcast(NewChange("messages", "y", OpInsert))
	select {
	case v := <-sub.C:
		t.Fatalf("unrelated collection triggered snapshot %d", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchKeepsLastSnapshotOnQueryError(t *testing.T) {
	hub := NewHub()
	var calls atomic.Int64
	sub := Watch(context.Background(), hub, func(context.Context) (string, error) {
		switch calls.Add(1) {
		case 2:
			return "", errors.New("store unavailable")
		case 1:
			return "first", nil
		default:
			return "third", nil
		}
	}, "listings")
	defer sub.Cancel()

	if got := recv(t, sub.C); got != "first" {
		t.Fatalf("got %q", got)
	}
	hub.Broadcast(NewChange("listings", "", OpUpdate))
	select {
	case v := <-sub.C:
		t.Fatalf("failed query must not emit, got %q", v)
	case <-time.After(50 * time.Millisecond):
	}
	hub.Broadcast(NewChange("listings", "", OpUpdate))
	if got := recv(t, sub.C); got != "third" {
		t.Fatalf("got %q", got)
	}
}

func TestStartEmitReplacesStaleSnapshot(t *testing.T) {
	release := make(chan struct{})
	sub := Start(context.Background(), func(ctx context.Context, emit Emitter[int]) {
		for i := 1; i <= 5; i++ {
			emit(i)
		}
		close(release)
		<-ctx.Done()
	})
	defer sub.Cancel()

	<-release
	if got := recv(t, sub.C); got != 5 {
		t.Fatalf("expected newest snapshot 5, got %d", got)
	}
}

func TestCancelClosesChannelAndUnsubscribes(t *testing.T) {
	hub := NewHub()
	sub := Watch(context.Background(), hub, func(context.Context) (int, error) { return 1, nil }, "listings")
	recv(t, sub.C)

	sub.Cancel()
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel after Cancel")
	}
	if hub.Len() != 0 {
		t.Fatalf("expected hub to drop watcher, got %d", hub.Len())
	}
	select {
	case <-sub.Done():
	default:
		t.Fatalf("Done should be closed after Cancel")
	}
}

func TestRedisBusRelaysIntoHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hub := NewHub()
	signal, unsub := hub.Subscribe("messages")
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewRedisBus(client, hub)
	go bus.Run(ctx)

	// the subscriber attaches asynchronously; publish until it is relayed
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := bus.Publish(ctx, NewChange("messages", "m1", OpInsert)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		select {
		case <-signal:
			return
		case <-deadline:
			t.Fatalf("change was not relayed from redis")
		case <-tick.C:
		}
	}
}

func TestDiscardPublisher(t *testing.T) {
	var p Publisher = Discard{}
	if err := p.Publish(context.Background(), NewChange("listings", "", OpDelete)); err != nil {
		t.Fatalf("Discard.Publish: %v", err)
	}
}

func TestOpFor(t *testing.T) {
	cases := map[string]Op{"insert": OpInsert, "update": OpUpdate, "replace": OpUpdate, "delete": OpDelete}
	for in, want := range cases {
		if got := opFor(in); got != want {
			t.Fatalf("opFor(%q) = %q, want %q", in, got, want)
		}
	}
}
