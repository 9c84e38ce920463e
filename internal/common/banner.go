package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner prints the startup banner with version and data path
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("venari", GetVersion())

	logger.Info().
		Str("version", GetVersion()).
		Str("environment", config.Environment).
		Str("data_path", config.Storage.Badger.Path).
		Msg("Venari job discovery worker")
}
