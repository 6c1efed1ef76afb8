package billing

import (
	"github.com/smallbiznis/revenuepulse/internal/billing/domain"
	"github.com/smallbiznis/revenuepulse/internal/billing/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(
		fx.Annotate(stripe.NewFactory, fx.As(new(domain.ClientFactory))),
	),
)
