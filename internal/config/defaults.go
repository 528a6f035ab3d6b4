package config

import "github.com/mrz1836/hwclaim/internal/chain"

// Explorer endpoint names. The set is fixed; exactly one is active at a time.
const (
	EndpointDefault = "default"
	EndpointAlt1    = "alt1"
	EndpointAlt2    = "alt2"
)

// DefaultEndpoints are the Komodo Insight explorers probed at startup.
//
//nolint:gochecknoglobals // Configuration default, copied into each Config
var DefaultEndpoints = []EndpointConfig{
	{Name: EndpointDefault, URL: "https://kmdexplorer.io/insight-api-komodo"},
	{Name: EndpointAlt1, URL: "https://kmd.explorer.dexstats.info/insight-api-komodo"},
	{Name: EndpointAlt2, URL: "https://www.kmdexplorer.ru/insight-api-komodo"},
}

// DefaultBridgeURL is where the local hardware wallet bridge listens.
const DefaultBridgeURL = "http://127.0.0.1:21325"

// Defaults returns the default configuration.
func Defaults() *Config {
	endpoints := make([]EndpointConfig, len(DefaultEndpoints))
	copy(endpoints, DefaultEndpoints)

	return &Config{
		Version: 1,
		Home:    "~/.hwclaim",
		Explorer: ExplorerConfig{
			Endpoints:           endpoints,
			TimeoutSeconds:      10,
			ProbeTimeoutSeconds: 5,
			RatePerSecond:       10,
			Burst:               20,
		},
		Device: DeviceConfig{
			BridgeURL:            DefaultBridgeURL,
			StatusTimeoutSeconds: 5,
		},
		Discovery: DiscoveryConfig{
			AccountGap:    0, // vendor default
			AddressGap:    0, // vendor default
			MaxConcurrent: 8,
			MaxAccounts:   100,
			RetryAttempts: 3,
		},
		Claim: ClaimConfig{
			TxFee:         chain.DefaultTxFee,
			ServiceFeeBPS: 0,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.hwclaim/hwclaim.log",
		},
	}
}
