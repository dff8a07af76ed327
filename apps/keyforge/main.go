package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/keyforge/keyforge/internal/clock"
	"github.com/keyforge/keyforge/internal/logger"
	"github.com/keyforge/keyforge/internal/migration"
	"github.com/keyforge/keyforge/internal/server"
	"github.com/keyforge/keyforge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
