package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config holds the proxy runtime configuration.
type Config struct {
	ListenAddr     string `toml:"listen_addr"`
	UpstreamAddr   string `toml:"upstream_addr"` // empty means echo mode
	MaxConnections int64  `toml:"max_connections"`
	AcceptProxy    bool   `toml:"accept_proxy"` // expect a PROXY preamble from clients
	SendProxy      bool   `toml:"send_proxy"`   // announce clients to the upstream
	MetricsAddr    string `toml:"metrics_addr"` // empty disables the metrics endpoint
	LogLevel       string `toml:"log_level"`
}

func Default() *Config {
	return &Config{
		ListenAddr:     ":7080",
		MaxConnections: 1024,
		LogLevel:       "info",
	}
}

// Load reads a TOML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if cfg.SendProxy && cfg.UpstreamAddr == "" {
		return nil, fmt.Errorf("send_proxy requires upstream_addr")
	}
	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("max_connections must be positive, got %d", cfg.MaxConnections)
	}
	return cfg, nil
}
