// Package config handles application configuration from environment
// variables plus an optional YAML rules file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all gateway configuration.
type Config struct {
	// ListenAddr is where the gateway intercepts application traffic.
	ListenAddr string `env:"VIDGATE_ADDR" envDefault:":8787"`
	// HostAddr is where the host (page-context) process listens.
	HostAddr string `env:"VIDGATE_HOST_ADDR" envDefault:":8788"`
	// Origin is the upstream application server fronted by the gateway.
	Origin string `env:"VIDGATE_ORIGIN" envDefault:"http://localhost:3000"`
	// BridgeURL is the host process bridge endpoint. Empty means no
	// active host context; bridge lookups resolve to defaults.
	BridgeURL string `env:"VIDGATE_BRIDGE_URL"`
	// SearchAPIBase is the third-party video search API root.
	SearchAPIBase string `env:"VIDGATE_SEARCH_API" envDefault:"https://www.eporner.com/api/v2"`

	// HostToken is the credential the host process hands out over the
	// bridge. Empty means no signed-in user.
	HostToken string `env:"VIDGATE_HOST_TOKEN"`
	// GatewayURL is where the host forwards deferred mutations.
	GatewayURL string `env:"VIDGATE_GATEWAY_URL" envDefault:"http://localhost:8787"`

	CacheDir     string `env:"VIDGATE_CACHE_DIR" envDefault:"cache-data"`
	DBPath       string `env:"VIDGATE_DB" envDefault:"vidgate.db"`
	CacheVersion string `env:"VIDGATE_CACHE_VERSION" envDefault:"v4"`
	RulesPath    string `env:"VIDGATE_RULES"`

	FetchTimeout  time.Duration `env:"VIDGATE_FETCH_TIMEOUT" envDefault:"4s"`
	BridgeTimeout time.Duration `env:"VIDGATE_BRIDGE_TIMEOUT" envDefault:"1s"`
	SyncInterval  time.Duration `env:"VIDGATE_SYNC_INTERVAL" envDefault:"30s"`

	// SnapshotMaxBytes bounds the persistent result store snapshot;
	// writes above it behave like a storage quota failure.
	SnapshotMaxBytes int `env:"VIDGATE_SNAPSHOT_MAX_BYTES" envDefault:"2097152"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate ensures required settings are coherent.
func (c Config) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("VIDGATE_ORIGIN must not be empty")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("VIDGATE_FETCH_TIMEOUT must be positive")
	}
	if c.BridgeTimeout <= 0 {
		return fmt.Errorf("VIDGATE_BRIDGE_TIMEOUT must be positive")
	}
	return nil
}
