package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/discedric/netbox-license/internal/clock"
	"github.com/discedric/netbox-license/internal/config"
	"github.com/discedric/netbox-license/internal/inventory"
	"github.com/discedric/netbox-license/internal/license"
	"github.com/discedric/netbox-license/internal/lock"
	"github.com/discedric/netbox-license/internal/migration"
	"github.com/discedric/netbox-license/internal/observability"
	"github.com/discedric/netbox-license/internal/scheduler"
	"github.com/discedric/netbox-license/internal/server"
	"github.com/discedric/netbox-license/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,
		migration.Module,

		// Licensing
		inventory.Module,
		license.Module,
		scheduler.Module,

		// Operations
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
