package usage

import (
	"github.com/moneyradar/moneyradar/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(service.New),
)
