// Package watchdog schedules the idle tracking session sweep.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chathuwa-whiz/schoolbus/pkg/logger/sl"
)

type Sweeper interface {
	SweepIdleSessions(ctx context.Context) (int, error)
}

// Start runs sweeper on schedule (standard cron spec or @every). Overlapping
// runs are skipped. Stop the returned cron on shutdown.
func Start(log *slog.Logger, sweeper Sweeper, schedule string, timeout time.Duration) (*cron.Cron, error) {
	const op = "watchdog.Start"

	log = log.With(slog.String("component", "watchdog"))

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		n, err := sweeper.SweepIdleSessions(ctx)
		if err != nil {
			log.Error("Idle session sweep failed", sl.Err(err))
			return
		}
		if n > 0 {
			log.Info("Idle session sweep finished", slog.Int("ended", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c.Start()
	log.Info("Idle session watchdog started", slog.String("schedule", schedule))

	return c, nil
}
