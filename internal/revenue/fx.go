package revenue

import (
	"github.com/moneyradar/moneyradar/internal/revenue/service"
	"go.uber.org/fx"
)

var Module = fx.Module("revenue.service",
	fx.Provide(service.New),
)
