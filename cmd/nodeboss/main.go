package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/internal/clock"
	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/internal/migration"
	"github.com/smallbiznis/nodeboss/internal/observability"
	"github.com/smallbiznis/nodeboss/internal/scheduler"
	"github.com/smallbiznis/nodeboss/internal/server"
	"github.com/smallbiznis/nodeboss/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
