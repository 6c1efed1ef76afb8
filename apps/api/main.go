package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/revenuepulse/internal/auth"
	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"github.com/smallbiznis/revenuepulse/internal/job"
	"github.com/smallbiznis/revenuepulse/internal/migration"
	"github.com/smallbiznis/revenuepulse/internal/observability"
	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
	"github.com/smallbiznis/revenuepulse/internal/scrapeddata"
	"github.com/smallbiznis/revenuepulse/internal/secret"
	"github.com/smallbiznis/revenuepulse/internal/server"
	"github.com/smallbiznis/revenuepulse/internal/submission"
	"github.com/smallbiznis/revenuepulse/pkg/db"
	"github.com/smallbiznis/revenuepulse/pkg/redisdb"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisdb.Module,
		clock.Module,
		migration.Module,

		// Core dependencies for the gateway
		secret.Module,
		job.Module,
		scrapeddata.Module,
		auth.Module,
		ratelimit.Module,
		submission.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNodeID)
}
