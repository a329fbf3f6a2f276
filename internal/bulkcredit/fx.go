package bulkcredit

import (
	"github.com/smallbiznis/meridian/internal/bulkcredit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("bulkcredit.service",
	fx.Provide(service.New),
)
