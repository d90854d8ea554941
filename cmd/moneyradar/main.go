package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/moneyradar/moneyradar/internal/clock"
	"github.com/moneyradar/moneyradar/internal/config"
	"github.com/moneyradar/moneyradar/internal/logger"
	"github.com/moneyradar/moneyradar/internal/migration"
	obsmetrics "github.com/moneyradar/moneyradar/internal/observability/metrics"
	"github.com/moneyradar/moneyradar/internal/scheduler"
	"github.com/moneyradar/moneyradar/internal/seed"
	"github.com/moneyradar/moneyradar/internal/server"
	"github.com/moneyradar/moneyradar/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		obsmetrics.Module,
		clock.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
		seed.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
