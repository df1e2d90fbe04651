// Package config loads the process's YAML configuration file: the
// backend store to use, the clouds to instantiate drivers for, the tick
// interval, and the REST server's listen address.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendType selects which store.WriteStore implementation to open.
type BackendType string

const (
	BackendSqlite BackendType = "sqlite"
	BackendRemote BackendType = "remote"
)

// SqliteBackend configures pkg/store/sqlitestore.
type SqliteBackend struct {
	Database string `yaml:"database"`
}

// RemoteBackend configures pkg/store/remotestore.
type RemoteBackend struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Timeout int    `yaml:"timeout"`
}

// BackendConfig is the backend section of the config file; exactly one
// of Sqlite or Remote should be set, selected by Type.
type BackendConfig struct {
	Type   BackendType    `yaml:"type"`
	Sqlite *SqliteBackend `yaml:"sqlite,omitempty"`
	Remote *RemoteBackend `yaml:"remote,omitempty"`
}

// ServerConfig is the REST server section.
type ServerConfig struct {
	Address         string `yaml:"address"`
	Port            int    `yaml:"port"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"`
}

// Config is the root of the YAML configuration file.
type Config struct {
	Backend                BackendConfig `yaml:"backend"`
	Clouds                 []string      `yaml:"clouds"`
	Server                 ServerConfig  `yaml:"server"`
	UpdateFrequencySeconds int           `yaml:"update_frequency_seconds"`
	DriverTimeoutSeconds   int           `yaml:"driver_timeout_seconds"`
}

const (
	defaultServerAddress         = "127.0.0.1"
	defaultServerPort            = 8080
	defaultServerShutdownTimeout = 30
	defaultUpdateFrequencySec    = 10
	defaultDriverTimeoutSec      = 10
)

// Load reads and parses the YAML config file at path, filling in the
// documented defaults for any field the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = defaultServerAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultServerShutdownTimeout
	}
	if c.UpdateFrequencySeconds == 0 {
		c.UpdateFrequencySeconds = defaultUpdateFrequencySec
	}
	if c.DriverTimeoutSeconds == 0 {
		c.DriverTimeoutSeconds = defaultDriverTimeoutSec
	}
	if c.Backend.Type == BackendRemote && c.Backend.Remote != nil && c.Backend.Remote.Timeout == 0 {
		c.Backend.Remote.Timeout = defaultDriverTimeoutSec
	}
}

func (c *Config) validate() error {
	switch c.Backend.Type {
	case BackendSqlite:
		if c.Backend.Sqlite == nil || c.Backend.Sqlite.Database == "" {
			return fmt.Errorf("backend.sqlite.database is required when backend.type is sqlite")
		}
	case BackendRemote:
		if c.Backend.Remote == nil || c.Backend.Remote.Host == "" {
			return fmt.Errorf("backend.remote.host is required when backend.type is remote")
		}
	default:
		return fmt.Errorf("backend.type must be %q or %q, got %q", BackendSqlite, BackendRemote, c.Backend.Type)
	}
	return nil
}

// UpdateFrequency is the configured inter-tick sleep as a time.Duration.
func (c *Config) UpdateFrequency() time.Duration {
	return time.Duration(c.UpdateFrequencySeconds) * time.Second
}

// DriverTimeout is the configured per-driver-call timeout as a time.Duration.
func (c *Config) DriverTimeout() time.Duration {
	return time.Duration(c.DriverTimeoutSeconds) * time.Second
}
