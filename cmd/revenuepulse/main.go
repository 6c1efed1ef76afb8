package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/revenuepulse/internal/aggregation"
	"github.com/smallbiznis/revenuepulse/internal/auth"
	"github.com/smallbiznis/revenuepulse/internal/billing"
	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"github.com/smallbiznis/revenuepulse/internal/job"
	"github.com/smallbiznis/revenuepulse/internal/migration"
	"github.com/smallbiznis/revenuepulse/internal/observability"
	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
	"github.com/smallbiznis/revenuepulse/internal/scheduler"
	"github.com/smallbiznis/revenuepulse/internal/scrapeddata"
	"github.com/smallbiznis/revenuepulse/internal/secret"
	"github.com/smallbiznis/revenuepulse/internal/server"
	"github.com/smallbiznis/revenuepulse/internal/submission"
	"github.com/smallbiznis/revenuepulse/internal/worker"
	"github.com/smallbiznis/revenuepulse/pkg/db"
	"github.com/smallbiznis/revenuepulse/pkg/redisdb"
)

// revenuepulse runs the HTTP gateway and the worker pool in one process.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisdb.Module,
		clock.Module,
		migration.Module,

		// Pipeline
		secret.Module,
		job.Module,
		billing.Module,
		aggregation.Module,
		scrapeddata.Module,
		worker.Module,
		scheduler.Module,

		// Gateway
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
