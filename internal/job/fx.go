package job

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revenuepulse/internal/job/domain"
	"github.com/smallbiznis/revenuepulse/internal/job/queue"
)

var Module = fx.Module("job.queue",
	fx.Provide(
		queue.New,
		func(q *queue.Queue) domain.Queue { return q },
	),
)
