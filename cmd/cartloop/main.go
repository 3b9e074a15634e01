package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/cartloop/internal/cart"
	"github.com/smallbiznis/cartloop/internal/cartsync"
	"github.com/smallbiznis/cartloop/internal/checkoutsync"
	"github.com/smallbiznis/cartloop/internal/config"
	"github.com/smallbiznis/cartloop/internal/discount"
	"github.com/smallbiznis/cartloop/internal/events"
	"github.com/smallbiznis/cartloop/internal/integration"
	"github.com/smallbiznis/cartloop/internal/logger"
	"github.com/smallbiznis/cartloop/internal/migration"
	"github.com/smallbiznis/cartloop/internal/payment"
	"github.com/smallbiznis/cartloop/internal/recovery"
	"github.com/smallbiznis/cartloop/internal/server"
	"github.com/smallbiznis/cartloop/internal/statestore"
	"github.com/smallbiznis/cartloop/internal/user"
	"github.com/smallbiznis/cartloop/pkg/db"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		events.Module,
		statestore.Module,

		// Functional Domains
		user.Module,
		integration.Module,
		payment.Module,
		discount.Module,
		cart.Module,
		cartsync.Module,
		checkoutsync.Module,
		recovery.Module,

		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
