package tradein

import (
	"github.com/smallbiznis/meridian/internal/tradein/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tradein.service",
	fx.Provide(service.New),
)
