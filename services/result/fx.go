package result

import (
	"go.uber.org/fx"
)

var Module = fx.Module("result.service",
	fx.Provide(
		NewService,
	),
)
