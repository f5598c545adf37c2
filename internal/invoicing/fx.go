package invoicing

import (
	"go.uber.org/fx"
)

var Module = fx.Module("invoicing",
	fx.Provide(
		NewClient,
	),
)
