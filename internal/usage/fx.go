package usage

import (
	"github.com/upcareer/jobdeck/internal/usage/repository"
	"github.com/upcareer/jobdeck/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
