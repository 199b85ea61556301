package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chathuwa-whiz/schoolbus/internal/metrics"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/logger/sl"
)

const idleEndDetails = "idle timeout"

// SweepIdleSessions ends active sessions that received no write within
// the configured idle timeout. A zero timeout disables the sweep.
func (s *Service) SweepIdleSessions(ctx context.Context) (int, error) {
	const op = "service.SweepIdleSessions"

	if s.cfg.IdleTimeout <= 0 {
		return 0, nil
	}

	now := s.now()
	cutoff := now.Add(-s.cfg.IdleTimeout).UnixMilli()

	ended, err := s.store.DeactivateIdle(ctx, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for i := range ended {
		sess := &ended[i]

		ev := s.newEvent(sess.BusID, models.EventEnd, nil)
		ev.SessionID = sess.SessionID
		ev.Day = sess.Day
		ev.Details = idleEndDetails

		if err := s.store.AppendEvent(ctx, ev); err != nil {
			s.log.Error("Failed to record idle end event",
				slog.String("bus_id", sess.BusID),
				slog.String("session_id", sess.SessionID),
				sl.Err(err),
			)
		}

		s.log.Info("Idle tracking session ended",
			slog.String("bus_id", sess.BusID),
			slog.String("session_id", sess.SessionID),
		)

		s.publish(ctx, sess)
	}

	metrics.IdleSessionsEnded(len(ended))

	return len(ended), nil
}
