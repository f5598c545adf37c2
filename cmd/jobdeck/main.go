package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/upcareer/jobdeck/internal/clock"
	"github.com/upcareer/jobdeck/internal/config"
	"github.com/upcareer/jobdeck/internal/entitlement"
	"github.com/upcareer/jobdeck/internal/invoicing"
	"github.com/upcareer/jobdeck/internal/migration"
	"github.com/upcareer/jobdeck/internal/observability"
	"github.com/upcareer/jobdeck/internal/payment"
	"github.com/upcareer/jobdeck/internal/ratelimit"
	"github.com/upcareer/jobdeck/internal/recommendation"
	"github.com/upcareer/jobdeck/internal/scheduler"
	"github.com/upcareer/jobdeck/internal/server"
	"github.com/upcareer/jobdeck/internal/subscription"
	"github.com/upcareer/jobdeck/internal/usage"
	"github.com/upcareer/jobdeck/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		subscription.Module,
		entitlement.Module,
		usage.Module,
		recommendation.Module,
		invoicing.Module,
		payment.Module,
		ratelimit.Module,
		scheduler.Module,

		server.Module,
	)

	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
