package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chathuwa-whiz/schoolbus/internal/models"
)

const (
	DefaultStream = "notifications"
	streamMaxLen  = 10000
)

// RedisStream appends notifications to a Redis stream consumed by the
// delivery workers.
type RedisStream struct {
	client *redis.Client
	stream string
}

func NewRedisStream(client *redis.Client, stream string) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}

	return &RedisStream{client: client, stream: stream}
}

func (r *RedisStream) Send(ctx context.Context, n models.Notification) error {
	const op = "notify.RedisStream.Send"

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"kind":     string(n.Kind),
			"priority": string(n.Priority),
			"payload":  payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
