package catalog

import (
	"github.com/moneyradar/moneyradar/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(service.New),
)
