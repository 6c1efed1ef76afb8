package aggregation

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revenuepulse/internal/aggregation/domain"
	"github.com/smallbiznis/revenuepulse/internal/aggregation/service"
)

var Module = fx.Module("aggregation",
	fx.Provide(
		service.NewService,
		func(s *service.Service) domain.Aggregator { return s },
	),
)
