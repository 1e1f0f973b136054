// Package config provides configuration management for TrafficWarden.
//
// The config file declares the static facts the daemon cannot discover on
// its own: which interfaces may be shaped and at what line rate, how tc
// commands reach the shaping device, and how compliance tests are tuned.
// Policies and traffic classes live in the database, not here.
//
// Config file locations (priority order):
//  1. $TRAFFICWARDEN_CONFIG
//  2. ./trafficwarden.yaml
//  3. ~/.config/trafficwarden/config.yaml
//  4. /etc/trafficwarden/config.yaml
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Version:    1,
		ListenAddr: ":8080",
		LogLevel:   "info",
		Database:   DatabaseConfig{Path: "./trafficwarden.db"},
		Interfaces: map[string]InterfaceConfig{},
		TrafficControl: TrafficControlConfig{
			Mode: "local",
		},
		Testing: TestingConfig{
			PingCount: 5,
			Preflight: true,
			IperfPath: "iperf3",
		},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./trafficwarden.db"
	}
	if c.Interfaces == nil {
		c.Interfaces = map[string]InterfaceConfig{}
	}
	if c.TrafficControl.Mode == "" {
		c.TrafficControl.Mode = "local"
	}
	if c.TrafficControl.Port == 0 {
		c.TrafficControl.Port = 22
	}
	if c.Testing.PingCount == 0 {
		c.Testing.PingCount = 5
	}
	if c.Testing.IperfPath == "" {
		c.Testing.IperfPath = "iperf3"
	}
}

// Validate rejects configs the daemon could not act on
func (c *Config) Validate() error {
	switch c.TrafficControl.Mode {
	case "local":
	case "ssh":
		if c.TrafficControl.Host == "" {
			return fmt.Errorf("traffic_control: ssh mode requires a host")
		}
		if c.TrafficControl.User == "" {
			return fmt.Errorf("traffic_control: ssh mode requires a user")
		}
		if c.TrafficControl.KeyPath == "" {
			return fmt.Errorf("traffic_control: ssh mode requires a key_path")
		}
	default:
		return fmt.Errorf("traffic_control: unknown mode %q (want local or ssh)", c.TrafficControl.Mode)
	}

	for name, iface := range c.Interfaces {
		if iface.CapacityBps <= 0 {
			return fmt.Errorf("interfaces.%s: capacity_bps must be positive", name)
		}
	}
	return nil
}

// Capacities returns the interface name to line-rate map the application
// engine consumes.
func (c *Config) Capacities() map[string]int64 {
	out := make(map[string]int64, len(c.Interfaces))
	for name, iface := range c.Interfaces {
		out[name] = iface.CapacityBps
	}
	return out
}

// ProbeTargets returns the interface name to probe address map for the
// latency monitor, skipping interfaces without a target.
func (c *Config) ProbeTargets() map[string]string {
	out := make(map[string]string)
	for name, iface := range c.Interfaces {
		if iface.ProbeTarget != "" {
			out[name] = iface.ProbeTarget
		}
	}
	return out
}
