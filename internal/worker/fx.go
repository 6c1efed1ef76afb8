package worker

import (
	"context"

	"go.uber.org/fx"

	"github.com/smallbiznis/revenuepulse/internal/observability/metrics"
	"github.com/smallbiznis/revenuepulse/internal/secret"
)

var Module = fx.Module("worker",
	fx.Provide(NewConfig),
	fx.Provide(
		func(s *secret.Sealer) CredentialOpener { return s },
		metrics.NewWorkerMetrics,
		fx.Annotate(NewScrapeHandler, fx.As(new(Handler)), fx.ResultTags(`group:"job_handlers"`)),
		New,
	),
	fx.Invoke(runWorker),
)

func runWorker(lc fx.Lifecycle, worker *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			worker.Start()
			return nil
		},
		OnStop: worker.Stop,
	})
}
