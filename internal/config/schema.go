package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version        int                        `yaml:"version"`
	ListenAddr     string                     `yaml:"listen_addr"`
	LogLevel       string                     `yaml:"log_level"`
	Database       DatabaseConfig             `yaml:"database"`
	Interfaces     map[string]InterfaceConfig `yaml:"interfaces"`
	TrafficControl TrafficControlConfig       `yaml:"traffic_control"`
	Testing        TestingConfig              `yaml:"testing"`
}

// DatabaseConfig describes where persistent state lives
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// InterfaceConfig describes one shapeable network interface. Capacity is
// the physical line rate in bits per second; bandwidth shares are carved
// out of it. ProbeTarget is an address behind the interface that latency
// probes are sent to.
type InterfaceConfig struct {
	CapacityBps int64  `yaml:"capacity_bps"`
	ProbeTarget string `yaml:"probe_target,omitempty"`
}

// TrafficControlConfig selects how tc commands reach the shaping device
type TrafficControlConfig struct {
	// Mode is "local" to run tc on this host or "ssh" to run it remotely
	Mode    string    `yaml:"mode"`
	Host    string    `yaml:"host,omitempty"`
	Port    int       `yaml:"port,omitempty"`
	User    string    `yaml:"user,omitempty"`
	KeyPath string    `yaml:"key_path,omitempty"`
	Timeout *Duration `yaml:"timeout,omitempty"`
}

// TestingConfig tunes compliance test runs
type TestingConfig struct {
	SampleInterval *Duration `yaml:"sample_interval,omitempty"`
	PingCount      int       `yaml:"ping_count"`
	PingTimeout    *Duration `yaml:"ping_timeout,omitempty"`
	PingPrivileged bool      `yaml:"ping_privileged"`
	Preflight      bool      `yaml:"preflight"`
	IperfPath      string    `yaml:"iperf_path"`
}

// Duration wraps time.Duration for human-readable YAML ("5s", "2m")
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DurationOr returns the configured duration, or fallback when unset
func DurationOr(d *Duration, fallback time.Duration) time.Duration {
	if d == nil {
		return fallback
	}
	return d.Duration()
}
