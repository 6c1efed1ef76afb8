package scheduler

import (
	"context"

	"go.uber.org/fx"

	obsmetrics "github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
)

var Module = fx.Module("scheduler",
	fx.Provide(NewConfig),
	fx.Provide(
		func(l *ratelimit.Locker) Locker { return l },
		obsmetrics.NewSchedulerMetrics,
		New,
	),
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, cfg Config, sched *Scheduler) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
