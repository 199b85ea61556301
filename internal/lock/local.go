package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Local is an in-process Locker for single-instance runs without Redis.
type Local struct {
	mu   sync.Mutex
	now  func() time.Time
	held map[string]localEntry
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocal() *Local {
	return &Local{now: time.Now, held: make(map[string]localEntry)}
}

func (l *Local) Lock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}

	return token, true, nil
}

func (l *Local) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.held[key]
	if !ok || e.token != token {
		return ErrNotHeld
	}

	delete(l.held, key)
	return nil
}
