package seed

import (
	"github.com/moneyradar/moneyradar/internal/clock"
	"github.com/moneyradar/moneyradar/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module seeds demo data in development only.
var Module = fx.Module("seed",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, clk clock.Clock) error {
		if cfg.Environment != "development" {
			return nil
		}
		return EnsureDemoData(conn, clk.Now())
	}),
)
