package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrz1836/hwclaim/internal/config"
)

//nolint:paralleltest // t.Setenv is incompatible with t.Parallel
func TestApplyEnvironment(t *testing.T) {
	t.Setenv(config.EnvHome, "/tmp/hwclaim-home")
	t.Setenv(config.EnvLogLevel, " DEBUG ")
	t.Setenv(config.EnvExplorer, "Alt2")
	t.Setenv(config.EnvBridgeURL, " http://127.0.0.1:9000/ ")
	t.Setenv(config.EnvOutputFormat, "JSON")
	t.Setenv(config.EnvMetricsAddr, ":9102")
	t.Setenv(config.EnvNoColor, "")

	cfg := config.Defaults()
	config.ApplyEnvironment(cfg)

	assert.Equal(t, "/tmp/hwclaim-home", cfg.Home)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "alt2", cfg.Explorer.Preferred)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.Device.BridgeURL)
	assert.Equal(t, "json", cfg.Output.DefaultFormat)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
	assert.Equal(t, "never", cfg.Output.Color)
}

func TestSanitizeURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean", "https://kmdexplorer.io/insight-api-komodo", "https://kmdexplorer.io/insight-api-komodo"},
		{"spaces", "  https://kmdexplorer.io/insight-api-komodo  ", "https://kmdexplorer.io/insight-api-komodo"},
		{"trailing slash", "http://127.0.0.1:21325/", "http://127.0.0.1:21325"},
		{"embedded newline", "http://127.0.0.1:21325\n", "http://127.0.0.1:21325"},
		{"not a url", " localhost ", "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, config.SanitizeURL(tt.input))
		})
	}
}
