package authsession

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// LoadConfigFromEnv returns the default configuration overridden by any
// AUTHSESSION_* environment variables that are set. The result is validated.
func LoadConfigFromEnv() (Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
