package config

import "github.com/caarlos0/env/v11"

// parseEnv overlays cfg with the CHARASYNC_* variables that are set.
// environ replaces the process environment when non-nil. Panics on
// malformed values, like the other loaders.
func parseEnv(cfg *Config, environ map[string]string) {
	opts := env.Options{Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		panic(err)
	}
}
