package config

import (
	"net/url"
	"os"
	"strings"
	"unicode"
)

// Environment variable names.
const (
	EnvHome         = "HWCLAIM_HOME"
	EnvLogLevel     = "HWCLAIM_LOG_LEVEL"
	EnvExplorer     = "HWCLAIM_EXPLORER"
	EnvBridgeURL    = "HWCLAIM_BRIDGE_URL"
	EnvOutputFormat = "HWCLAIM_OUTPUT_FORMAT"
	EnvMetricsAddr  = "HWCLAIM_METRICS_ADDR"
	EnvNoColor      = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvExplorer); v != "" {
		cfg.Explorer.Preferred = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvBridgeURL); v != "" {
		cfg.Device.BridgeURL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.Addr = strings.TrimSpace(v)
	}

	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// SanitizeURL strips whitespace and control characters picked up by
// copy-paste, and drops a trailing slash. Strings that do not parse as an
// absolute URL are returned trimmed but otherwise untouched.
func SanitizeURL(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)

	u, err := url.Parse(cleaned)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return cleaned
	}
	return strings.TrimSuffix(u.String(), "/")
}
