package alert

import (
	"github.com/moneyradar/moneyradar/internal/alert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(service.New),
)
