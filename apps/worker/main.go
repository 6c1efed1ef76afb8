package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/revenuepulse/internal/aggregation"
	"github.com/smallbiznis/revenuepulse/internal/billing"
	"github.com/smallbiznis/revenuepulse/internal/clock"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"github.com/smallbiznis/revenuepulse/internal/job"
	"github.com/smallbiznis/revenuepulse/internal/observability"
	"github.com/smallbiznis/revenuepulse/internal/ratelimit"
	"github.com/smallbiznis/revenuepulse/internal/scheduler"
	"github.com/smallbiznis/revenuepulse/internal/scrapeddata"
	"github.com/smallbiznis/revenuepulse/internal/secret"
	"github.com/smallbiznis/revenuepulse/internal/worker"
	"github.com/smallbiznis/revenuepulse/pkg/db"
	"github.com/smallbiznis/revenuepulse/pkg/redisdb"
)

// The worker does not migrate; the api owns the schema.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisdb.Module,
		clock.Module,

		secret.Module,
		job.Module,
		billing.Module,
		aggregation.Module,
		scrapeddata.Module,
		worker.Module,
		ratelimit.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNodeID)
}
