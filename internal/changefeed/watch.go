package changefeed

import (
	"context"
	"log/slog"
)

// Subscription is a stream of snapshots. C is closed after Cancel, or when the
// parent context ends. Only the newest undelivered snapshot is kept.
type Subscription[T any] struct {
	C <-chan T

	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the subscription and waits for its goroutine to exit.
func (s *Subscription[T]) Cancel() {
	s.cancel()
	<-s.done
}

// Done is closed once the subscription has stopped.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Emitter hands snapshots to a subscriber.
type Emitter[T any] func(T)

// Start runs fn in its own goroutine as the producer of a subscription.
// fn should return when ctx is done.
func Start[T any](ctx context.Context, fn func(ctx context.Context, emit Emitter[T])) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan T, 1)
	sub := &Subscription[T]{C: out, cancel: cancel, done: make(chan struct{})}

	emit := func(v T) {
		for {
			select {
			case out <- v:
				return
			default:
			}
			// drop the stale snapshot
			select {
			case <-out:
			default:
			}
		}
	}

	go func() {
		defer close(sub.done)
		defer close(out)
		fn(ctx, emit)
	}()
	return sub
}

// Query produces a full snapshot.
type Query[T any] func(ctx context.Context) (T, error)

// Watch delivers query's result now and again after every change to one of the
// collections. A failed query is logged and the previous snapshot stands.
func Watch[T any](ctx context.Context, hub *Hub, query Query[T], collections ...string) *Subscription[T] {
	signal, unsubscribe := hub.Subscribe(collections...)
	return Start(ctx, func(ctx context.Context, emit Emitter[T]) {
		defer unsubscribe()
		refresh := func() {
			v, err := query(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("changefeed query failed", "collections", collections, "error", err)
				}
				return
			}
			emit(v)
		}

		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				refresh()
			}
		}
	})
}
