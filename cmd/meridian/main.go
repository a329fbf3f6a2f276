package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meridian/internal/observability"
	"github.com/smallbiznis/meridian/internal/server"
	"github.com/smallbiznis/meridian/pkg/db"
	"go.uber.org/fx"
)

func main() {
	// config.Module and clock.Module ride in with server.Module.
	app := fx.New(
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
