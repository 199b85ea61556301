package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

const retryInterval = 25 * time.Millisecond

// Acquire retries Lock until it succeeds or wait has passed, then fails
// with response.ErrLocked. The returned release func ignores errors from
// an already expired lock.
func Acquire(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (func(), error) {
	const op = "lock.Acquire"

	deadline := time.Now().Add(wait)

	for {
		token, ok, err := l.Lock(ctx, key, ttl)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if ok {
			return func() {
				// the caller's ctx may already be done
				unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				_ = l.Unlock(unlockCtx, key, token)
			}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%s: %s: %w", op, key, response.ErrLocked)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}
