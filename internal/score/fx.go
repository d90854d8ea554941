package score

import (
	"github.com/moneyradar/moneyradar/internal/score/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("score.repository",
	fx.Provide(repository.Provide),
)
