// Package notify hands domain events to the notification channel without
// making the caller wait for delivery.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/logger/sl"
)

type Sender interface {
	Send(ctx context.Context, n models.Notification) error
}

// Async sends in the background. Failures are logged and dropped.
type Async struct {
	log     *slog.Logger
	next    Sender
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(log *slog.Logger, next Sender, timeout time.Duration) *Async {
	return &Async{
		log:     log.With(slog.String("component", "notify")),
		next:    next,
		timeout: timeout,
	}
}

func (a *Async) Notify(ctx context.Context, n models.Notification) {
	a.wg.Add(1)

	go func() {
		defer a.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		if err := a.next.Send(sendCtx, n); err != nil {
			a.log.Warn("Failed to send notification",
				slog.String("kind", string(n.Kind)),
				slog.String("bus_id", n.BusID),
				slog.String("child_id", n.ChildID),
				sl.Err(err),
			)
		}
	}()
}

// Wait blocks until in-flight sends finish or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSender writes notifications to the log. Used when Redis is not configured.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, n models.Notification) error {
	s.log.Info("Notification",
		slog.String("kind", string(n.Kind)),
		slog.String("priority", string(n.Priority)),
		slog.String("bus_id", n.BusID),
		slog.String("child_id", n.ChildID),
		slog.String("message", n.Message),
	)

	return nil
}
