// Package stream serves live session snapshots of a bus as server-sent
// events.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chathuwa-whiz/schoolbus/api"
	"github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/logger/sl"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

const (
	eventSession = "session"
	DefaultPing  = 25 * time.Second
)

type Watcher interface {
	AuthorizeBusRead(ctx context.Context, actor models.Actor, busID string) error
	GetCurrentTracking(ctx context.Context, actor models.Actor, busID string) (*api.TrackingSession, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, busID string) (<-chan []byte, func())
}

// New serves GET /tracking/bus/{busId}/stream. The current session, if
// any, is sent first; every accepted write follows as a "session" event.
// Comment lines keep idle connections open.
func New(log *slog.Logger, watcher Watcher, hub Subscriber, ping time.Duration) http.HandlerFunc {
	if ping <= 0 {
		ping = DefaultPing
	}

	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.tracking.stream.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		actor, ok := handlers.Actor(log, w, r)
		if !ok {
			return
		}

		ctx := r.Context()
		busID := chi.URLParam(r, "busId")

		if err := watcher.AuthorizeBusRead(ctx, actor, busID); err != nil {
			handlers.Fail(log, w, r, err, "Failed to open tracking stream")
			return
		}

		updates, cancel := hub.Subscribe(ctx, busID)
		defer cancel()

		snapshot, err := watcher.GetCurrentTracking(ctx, actor, busID)
		if err != nil && !errors.Is(err, response.ErrNotFound) {
			handlers.Fail(log, w, r, err, "Failed to open tracking stream")
			return
		}

		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
			log.Warn("Failed to clear write deadline", sl.Err(err))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		send := func(payload []byte) error {
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventSession, payload); err != nil {
				return err
			}
			return rc.Flush()
		}

		if snapshot != nil {
			payload, err := json.Marshal(snapshot)
			if err != nil {
				log.Error("Failed to encode snapshot", sl.Err(err))
				return
			}
			if err := send(payload); err != nil {
				return
			}
		} else if err := rc.Flush(); err != nil {
			return
		}

		log.Info("Tracking stream opened", slog.String("bus_id", busID), slog.String("actor", actor.ID))
		defer log.Info("Tracking stream closed", slog.String("bus_id", busID))

		ticker := time.NewTicker(ping)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-updates:
				if !ok {
					return
				}
				if err := send(payload); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}
			}
		}
	}
}
