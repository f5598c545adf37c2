package payment

import (
	"github.com/upcareer/jobdeck/internal/config"
	"github.com/upcareer/jobdeck/internal/payment/adapters"
	"github.com/upcareer/jobdeck/internal/payment/adapters/grow"
	"github.com/upcareer/jobdeck/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		newRegistry,
		newGrowClient,
		service.NewService,
	),
)

func newRegistry() *adapters.Registry {
	return adapters.NewRegistry(grow.NewFactory())
}

func newGrowClient(cfg config.Config) *grow.Client {
	return grow.NewClient(cfg.Grow)
}
