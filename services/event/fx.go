package event

import (
	"go.uber.org/fx"
)

var Module = fx.Module("event.service",
	fx.Provide(
		NewService,
		NewTallySource,
	),
)
