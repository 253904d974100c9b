package env

import (
	"github.com/thatsimonsguy/pool-controller/internal/config"
)

// Cfg is the loaded process config, set once in main before any
// ambient package (datadog, notifications, shutdown) is initialised.
var Cfg *config.Config
