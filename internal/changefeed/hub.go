package changefeed

import (
	"context"
	"sync"
)

// Hub is the in-process registry of watchers.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*hubSub
}

type hubSub struct {
	collections map[string]struct{}
	notify      chan struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*hubSub)}
}

// Subscribe returns a channel that receives a signal after any change to one of
// the collections. Signals coalesce: a burst of changes may yield one signal.
// The returned func unsubscribes.
func (h *Hub) Subscribe(collections ...string) (<-chan struct{}, func()) {
	sub := &hubSub{
		collections: make(map[string]struct{}, len(collections)),
		notify:      make(chan struct{}, 1),
	}
	for _, c := range collections {
		sub.collections[c] = struct{}{}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.notify, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Broadcast signals every watcher of c.Collection without blocking.
func (h *Hub) Broadcast(c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if _, ok := sub.collections[c.Collection]; !ok {
			continue
		}
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

// Publish lets the Hub serve as the Publisher of a single-instance deployment.
func (h *Hub) Publish(_ context.Context, c Change) error {
	h.Broadcast(c)
	return nil
}

// Len reports the number of live watchers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
