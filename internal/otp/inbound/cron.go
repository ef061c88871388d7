package inbound

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

const sweepTimeout = 30 * time.Second

type sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// RegisterCron schedules the expired-code sweep on c.
func RegisterCron(c *cron.Cron, schedule string, uc sweeper) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		if _, err := uc.Sweep(ctx); err != nil {
			slog.ErrorContext(ctx, "scheduled otp sweep failed", "error", err)
		}
	})
	return err
}
