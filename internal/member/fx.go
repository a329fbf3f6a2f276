package member

import (
	"github.com/smallbiznis/meridian/internal/member/service"
	"go.uber.org/fx"
)

var Module = fx.Module("member.service",
	fx.Provide(service.New),
)
