// Package config loads runtime settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config carries every runtime setting for the booth and relay binaries.
type Config struct {
	// Store backends, tried in order: Redis, then the relay, then the
	// local database.
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RelayURL    string `env:"RELAY_URL" envDefault:""`
	LocalDBPath string `env:"LOCAL_DB_PATH" envDefault:"booth.db"`

	// Gallery persistence. Empty disables the gallery.
	MongoURI string `env:"MONGO_URI" envDefault:""`

	// Relay server settings.
	Port      string `env:"PORT" envDefault:"8080"`
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`

	// Client identity and capture defaults.
	DisplayName string `env:"DISPLAY_NAME" envDefault:""`
	Filter      string `env:"FILTER" envDefault:"sepia"`
	Layout      string `env:"STRIP_LAYOUT" envDefault:"classic"`
	Border      string `env:"STRIP_BORDER" envDefault:"ornate"`

	// Synthetic camera resolution.
	CameraWidth  int `env:"CAMERA_WIDTH" envDefault:"640"`
	CameraHeight int `env:"CAMERA_HEIGHT" envDefault:"480"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
