package changefeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "changes:"

// RedisBus carries changes between instances over Redis pub/sub.
// Publish sends to "changes:<collection>"; Run relays every such channel into
// the local hub.
type RedisBus struct {
	client *redis.Client
	hub    *Hub
}

func NewRedisBus(client *redis.Client, hub *Hub) *RedisBus {
	return &RedisBus{client: client, hub: hub}
}

func (b *RedisBus) Publish(ctx context.Context, c Change) error {
	if c.At == 0 {
		c.At = time.Now().UnixMilli()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisChannelPrefix+c.Collection, data).Err()
}

// Run subscribes until ctx ends, reconnecting with exponential backoff.
func (b *RedisBus) Run(ctx context.Context) {
	backoff := time.Second

	for ctx.Err() == nil {
		if err := b.listen(ctx, &backoff); err != nil && ctx.Err() == nil {
			slog.Warn("changefeed redis subscriber error", "error", err, "retry_in", backoff.String())
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
	}
}

func (b *RedisBus) listen(ctx context.Context, backoff *time.Duration) error {
	pubsub := b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	slog.Info("changefeed redis subscriber started", "pattern", redisChannelPrefix+"*")

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		*backoff = time.Second

		var c Change
		if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
			slog.Warn("changefeed: bad redis payload", "channel", msg.Channel, "error", err)
			continue
		}
		if c.Collection == "" {
			c.Collection = strings.TrimPrefix(msg.Channel, redisChannelPrefix)
		}
		b.hub.Broadcast(c)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
