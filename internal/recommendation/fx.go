package recommendation

import (
	"github.com/upcareer/jobdeck/internal/recommendation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recommendation",
	fx.Provide(
		service.NewService,
	),
)
