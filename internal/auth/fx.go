package auth

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/revenuepulse/internal/auth/repository"
	"github.com/smallbiznis/revenuepulse/internal/auth/service"
	"github.com/smallbiznis/revenuepulse/internal/auth/session"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(session.NewManager),
)
