package subscription

import (
	"github.com/upcareer/jobdeck/internal/subscription/repository"
	"github.com/upcareer/jobdeck/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
