package scrapeddata

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revenuepulse/internal/scrapeddata/repository"
	"github.com/smallbiznis/revenuepulse/internal/scrapeddata/service"
)

var Module = fx.Module("scrapeddata.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
