// Package config provides configuration management for hwclaim.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/hwclaim/internal/fileutil"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Home      string          `yaml:"home"`
	Explorer  ExplorerConfig  `yaml:"explorer"`
	Device    DeviceConfig    `yaml:"device"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Claim     ClaimConfig     `yaml:"claim"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// EndpointConfig names one Insight explorer backend.
type EndpointConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ExplorerConfig defines the explorer backends and their call budget.
type ExplorerConfig struct {
	Endpoints           []EndpointConfig `yaml:"endpoints"`
	Preferred           string           `yaml:"preferred,omitempty"`
	TimeoutSeconds      int              `yaml:"timeout_seconds"`
	ProbeTimeoutSeconds int              `yaml:"probe_timeout_seconds"`
	RatePerSecond       float64          `yaml:"rate_per_second"`
	Burst               int              `yaml:"burst"`
}

// DeviceConfig defines how the hardware wallet bridge is reached.
type DeviceConfig struct {
	BridgeURL            string `yaml:"bridge_url"`
	StatusTimeoutSeconds int    `yaml:"status_timeout_seconds"`
}

// DiscoveryConfig overrides the vendor gap policy. Zero means "use the
// vendor default".
type DiscoveryConfig struct {
	AccountGap    int `yaml:"account_gap"`
	AddressGap    int `yaml:"address_gap"`
	MaxConcurrent int `yaml:"max_concurrent"`
	MaxAccounts   int `yaml:"max_accounts"`
	RetryAttempts int `yaml:"retry_attempts"`
}

// ClaimConfig defines the claim transaction economics.
type ClaimConfig struct {
	TxFee             uint64 `yaml:"tx_fee"`
	ServiceFeeBPS     uint64 `yaml:"service_fee_bps"`
	ServiceFeeAddress string `yaml:"service_fee_address,omitempty"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// MetricsConfig defines the optional Prometheus listener.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Load reads configuration from the specified file on top of Defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path comes from the home directory
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, hwerr.Wrap(hwerr.ErrConfigInvalid, "parsing %s: %v", path, err)
	}
	return cfg, nil
}

// LoadOrDefaults loads the config file when present and falls back to
// Defaults when it does not exist.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the config file path inside the home directory.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DefaultHome returns the default hwclaim home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hwclaim"
	}
	return filepath.Join(home, ".hwclaim")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	if len(c.Explorer.Endpoints) == 0 {
		return hwerr.Wrap(hwerr.ErrConfigInvalid, "explorer.endpoints is empty")
	}

	seen := make(map[string]struct{}, len(c.Explorer.Endpoints))
	for _, ep := range c.Explorer.Endpoints {
		if ep.Name == "" || ep.URL == "" {
			return hwerr.Wrap(hwerr.ErrConfigInvalid, "explorer endpoint needs both name and url")
		}
		if _, dup := seen[ep.Name]; dup {
			return hwerr.Wrap(hwerr.ErrConfigInvalid, "duplicate explorer endpoint %q", ep.Name)
		}
		seen[ep.Name] = struct{}{}
	}
	if c.Explorer.Preferred != "" {
		if _, ok := seen[c.Explorer.Preferred]; !ok {
			return hwerr.Wrap(hwerr.ErrConfigInvalid, "explorer.preferred %q is not a configured endpoint", c.Explorer.Preferred)
		}
	}

	if c.Explorer.TimeoutSeconds <= 0 || c.Explorer.ProbeTimeoutSeconds <= 0 {
		return hwerr.Wrap(hwerr.ErrConfigInvalid, "explorer timeouts must be positive")
	}
	if c.Discovery.AccountGap < 0 || c.Discovery.AddressGap < 0 || c.Discovery.MaxConcurrent < 0 {
		return hwerr.Wrap(hwerr.ErrConfigInvalid, "discovery limits must not be negative")
	}
	if c.Claim.ServiceFeeBPS > 10_000 {
		return hwerr.Wrap(hwerr.ErrConfigInvalid, "claim.service_fee_bps must be at most 10000")
	}
	if c.Claim.ServiceFeeBPS > 0 && c.Claim.ServiceFeeAddress == "" {
		return hwerr.Wrap(hwerr.ErrConfigInvalid, "claim.service_fee_address is required when a service fee is set")
	}
	return nil
}

// EndpointURL returns the URL configured for the named endpoint.
func (c *Config) EndpointURL(name string) (string, bool) {
	for _, ep := range c.Explorer.Endpoints {
		if ep.Name == name {
			return ep.URL, true
		}
	}
	return "", false
}

// LogFile returns the expanded log file path.
func (c *Config) LogFile() string {
	if c.Logging.File == "" {
		return ""
	}
	return ExpandHome(c.Logging.File)
}

// String renders the config as YAML for display.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return string(data)
}
