package config

import "go.uber.org/fx"

// Module wires application configuration and the threshold block.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config) Thresholds { return cfg.Thresholds }),
)
