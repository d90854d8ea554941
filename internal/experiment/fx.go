package experiment

import (
	"github.com/moneyradar/moneyradar/internal/experiment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("experiment.service",
	fx.Provide(
		service.New,
		service.NewReporter,
	),
)
