// Package config loads and hot-reloads the hub's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oddmeter/camhub/internal/middleware"
)

// Server covers the pieces that require a process restart to change:
// listen address, TLS material, database connectivity.
type Server struct {
	ListenAddr      string `yaml:"listen_addr"`
	TLSCertPath     string `yaml:"tls_cert_path"`
	TLSKeyPath      string `yaml:"tls_key_path"`
	DatabaseDSN     string `yaml:"database_dsn"`
	RedisAddr       string `yaml:"redis_addr"`
	VideoDir        string `yaml:"video_dir"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Discovery covers the WS-Discovery (ONVIF) camera scan loop.
type Discovery struct {
	Enabled      bool          `yaml:"enabled"`
	ScanInterval time.Duration `yaml:"scan_interval"`
}

// Hot is the subset of configuration that the Watcher re-reads on every
// change to the file: rate-limit thresholds and the discovery settings. It
// is swapped in as a whole behind an atomic.Pointer on every reload so
// readers of Watcher.Current never observe a half-updated struct.
// cmd/server reads it only once, at startup, when it builds the rate-limit
// middleware and the discovery scanner, so a reloaded value does not reach
// either of them until the process restarts.
type Hot struct {
	RateLimit middleware.Config `yaml:"rate_limit"`
	Discovery Discovery         `yaml:"discovery"`
}

// Config is the full parsed shape of config/default.yaml.
type Config struct {
	Server Server `yaml:"server"`
	Hot    `yaml:",inline"`
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}
