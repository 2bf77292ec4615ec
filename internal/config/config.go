// Package config handles configuration loading from YAML files.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds engine and daemon configuration.
type Config struct {
	BlockThreshold  int      `yaml:"block_threshold"`
	AlertThreshold  int      `yaml:"alert_threshold"`
	MinPacketSize   int      `yaml:"min_packet_size"`
	MaxPacketSize   int      `yaml:"max_packet_size"`
	SuspiciousWords []string `yaml:"suspicious_words"`
	BlacklistedIPs  []string `yaml:"blacklisted_ips"`
	MonitoredPorts  []int    `yaml:"monitored_ports"`
	HistorySize     int      `yaml:"history_size"`

	DataDir         string        `yaml:"data_dir"`
	Socket          string        `yaml:"socket"`
	LogLevel        string        `yaml:"log_level"`
	PersistInterval time.Duration `yaml:"persist_interval"`
	VerifyInterval  time.Duration `yaml:"verify_interval"`
	MetricsListen   string        `yaml:"metrics_listen"`
}

// DefaultConfigPath is the default location for the config file.
const DefaultConfigPath = "/etc/fwledger/fwledger.yaml"

// Load reads configuration from a YAML file. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	path = expandHome(path)
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Defaults returns a config with default values.
func Defaults() *Config {
	return &Config{
		BlockThreshold:  3,
		AlertThreshold:  2,
		MinPacketSize:   20,
		MaxPacketSize:   65535,
		SuspiciousWords: []string{"malware", "exploit", "attack", "virus", "hack"},
		BlacklistedIPs:  []string{},
		MonitoredPorts:  []int{22, 80, 443},
		HistorySize:     1000,
		DataDir:         "",
		Socket:          "",
		LogLevel:        "info",
		PersistInterval: 10 * time.Second,
		VerifyInterval:  5 * time.Minute,
		MetricsListen:   "",
	}
}

// Validate checks threshold ordering, size bounds and blacklist syntax.
func (c *Config) Validate() error {
	var errs []error
	if c.AlertThreshold < 1 {
		errs = append(errs, fmt.Errorf("alert_threshold must be >= 1, got %d", c.AlertThreshold))
	}
	if c.BlockThreshold <= c.AlertThreshold {
		errs = append(errs, fmt.Errorf("block_threshold (%d) must be greater than alert_threshold (%d)", c.BlockThreshold, c.AlertThreshold))
	}
	if c.MinPacketSize < 0 || c.MinPacketSize > c.MaxPacketSize {
		errs = append(errs, fmt.Errorf("packet size bounds [%d, %d] are invalid", c.MinPacketSize, c.MaxPacketSize))
	}
	if c.PersistInterval <= 0 {
		errs = append(errs, fmt.Errorf("persist_interval must be positive, got %s", c.PersistInterval))
	}
	if c.VerifyInterval < 0 {
		errs = append(errs, fmt.Errorf("verify_interval must not be negative, got %s", c.VerifyInterval))
	}
	if _, err := c.Blacklist(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range c.MonitoredPorts {
		if p < 0 || p > 65535 {
			errs = append(errs, fmt.Errorf("monitored port %d out of range", p))
		}
	}
	return errors.Join(errs...)
}

// Blacklist parses the blacklisted addresses.
func (c *Config) Blacklist() ([]netip.Addr, error) {
	addrs := make([]netip.Addr, 0, len(c.BlacklistedIPs))
	for _, s := range c.BlacklistedIPs {
		a, err := netip.ParseAddr(s)
		if err != nil || !a.Is4() {
			return nil, fmt.Errorf("invalid blacklisted ip %q", s)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// ResolveDataDir expands the data directory, defaulting to ~/.fwledger.
func (c *Config) ResolveDataDir() string {
	if c.DataDir == "" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".fwledger")
	}
	return expandHome(c.DataDir)
}

// ResolveSocket returns the socket path, defaulting to <data dir>/fwledger.sock.
func (c *Config) ResolveSocket() string {
	if c.Socket == "" {
		return filepath.Join(c.ResolveDataDir(), "fwledger.sock")
	}
	return expandHome(c.Socket)
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
