package submission

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
	"github.com/smallbiznis/revenuepulse/internal/secret"
	"github.com/smallbiznis/revenuepulse/internal/submission/service"
)

var Module = fx.Module("submission.service",
	fx.Provide(
		func(s *secret.Sealer) service.Sealer { return s },
		func(l *ratelimit.SubmissionLimiter) service.Limiter { return l },
		service.New,
	),
)
