package climate

import (
	"context"
	"log/slog"
	"time"

	"climap-server/internal/config"
	"climap-server/internal/scheduler"
)

type maintainer interface {
	ReloadChanged() ([]string, error)
	PruneSessions(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Jobs returns the periodic work of the module. A zero ReloadInterval leaves file polling off.
func Jobs(cfg config.Config, svc maintainer) []scheduler.Job {
	return []scheduler.Job{
		{
			Name:     "reload-changed-datasets",
			Interval: cfg.ReloadInterval,
			Run: func(ctx context.Context) error {
				reloaded, err := svc.ReloadChanged()
				if len(reloaded) > 0 {
					slog.Info("changed datasets reloaded", "datasets", reloaded)
				}
				return err
			},
		},
		{
			Name:     "prune-sessions",
			Interval: time.Hour,
			Run: func(ctx context.Context) error {
				_, err := svc.PruneSessions(ctx, cfg.SessionMaxAge)
				return err
			},
		},
	}
}
