// Package config provides configuration infrastructure and Fx modules.
package config

import (
	"go.uber.org/fx"
)

// Module provides *Config loaded from the supplied file path string.
var Module = fx.Module("config",
	fx.Provide(LoadConfig),
)
