package entitlement

import (
	"github.com/upcareer/jobdeck/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement",
	fx.Provide(
		service.NewChecker,
	),
)
