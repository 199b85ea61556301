package live

import (
	"context"
	"sync"
)

// LocalHub fans out in process. Used when Redis is not configured and in tests.
type LocalHub struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

func NewLocalHub() *LocalHub {
	return &LocalHub{subs: make(map[string]map[chan []byte]struct{})}
}

func (h *LocalHub) Publish(_ context.Context, busID string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[busID] {
		select {
		case ch <- payload:
		default:
		}
	}

	return nil
}

func (h *LocalHub) Subscribe(_ context.Context, busID string) (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)

	h.mu.Lock()
	if h.subs[busID] == nil {
		h.subs[busID] = make(map[chan []byte]struct{})
	}
	h.subs[busID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[busID], ch)
			if len(h.subs[busID]) == 0 {
				delete(h.subs, busID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}
