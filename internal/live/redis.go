package live

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisHub fans out over Redis pub/sub so every instance can serve a
// stream for any bus.
type RedisHub struct {
	client *redis.Client
}

func NewRedisHub(client *redis.Client) *RedisHub {
	return &RedisHub{client: client}
}

func (h *RedisHub) Publish(ctx context.Context, busID string, payload []byte) error {
	const op = "live.RedisHub.Publish"

	if err := h.client.Publish(ctx, channel(busID), payload).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (h *RedisHub) Subscribe(ctx context.Context, busID string) (<-chan []byte, func()) {
	ps := h.client.Subscribe(ctx, channel(busID))
	out := make(chan []byte, subscriberBuffer)

	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
			}
		}
	}()

	return out, func() { _ = ps.Close() }
}
