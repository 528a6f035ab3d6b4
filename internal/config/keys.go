package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

type field struct {
	get func(*Config) string
	set func(*Config, string) error
}

//nolint:gochecknoglobals // static key table
var fields = map[string]field{
	"explorer.preferred": {
		get: func(c *Config) string { return c.Explorer.Preferred },
		set: func(c *Config, v string) error { c.Explorer.Preferred = v; return nil },
	},
	"explorer.timeout_seconds": intField(func(c *Config) *int { return &c.Explorer.TimeoutSeconds }),
	"explorer.probe_timeout_seconds": intField(func(c *Config) *int {
		return &c.Explorer.ProbeTimeoutSeconds
	}),
	"explorer.burst": intField(func(c *Config) *int { return &c.Explorer.Burst }),
	"explorer.rate_per_second": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Explorer.RatePerSecond, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			c.Explorer.RatePerSecond = f
			return nil
		},
	},
	"device.bridge_url": {
		get: func(c *Config) string { return c.Device.BridgeURL },
		set: func(c *Config, v string) error { c.Device.BridgeURL = SanitizeURL(v); return nil },
	},
	"device.status_timeout_seconds": intField(func(c *Config) *int { return &c.Device.StatusTimeoutSeconds }),
	"discovery.account_gap":         intField(func(c *Config) *int { return &c.Discovery.AccountGap }),
	"discovery.address_gap":         intField(func(c *Config) *int { return &c.Discovery.AddressGap }),
	"discovery.max_concurrent":      intField(func(c *Config) *int { return &c.Discovery.MaxConcurrent }),
	"discovery.max_accounts":        intField(func(c *Config) *int { return &c.Discovery.MaxAccounts }),
	"discovery.retry_attempts":      intField(func(c *Config) *int { return &c.Discovery.RetryAttempts }),
	"claim.tx_fee":                  uintField(func(c *Config) *uint64 { return &c.Claim.TxFee }),
	"claim.service_fee_bps":         uintField(func(c *Config) *uint64 { return &c.Claim.ServiceFeeBPS }),
	"claim.service_fee_address": {
		get: func(c *Config) string { return c.Claim.ServiceFeeAddress },
		set: func(c *Config, v string) error { c.Claim.ServiceFeeAddress = v; return nil },
	},
	"output.default_format": {
		get: func(c *Config) string { return c.Output.DefaultFormat },
		set: func(c *Config, v string) error { c.Output.DefaultFormat = strings.ToLower(v); return nil },
	},
	"output.color": {
		get: func(c *Config) string { return c.Output.Color },
		set: func(c *Config, v string) error { c.Output.Color = strings.ToLower(v); return nil },
	},
	"logging.level": {
		get: func(c *Config) string { return c.Logging.Level },
		set: func(c *Config, v string) error { c.Logging.Level = ParseLogLevel(v).String(); return nil },
	},
	"logging.file": {
		get: func(c *Config) string { return c.Logging.File },
		set: func(c *Config, v string) error { c.Logging.File = v; return nil },
	},
	"metrics.addr": {
		get: func(c *Config) string { return c.Metrics.Addr },
		set: func(c *Config, v string) error { c.Metrics.Addr = v; return nil },
	},
}

func intField(ptr func(*Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*ptr(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*ptr(c) = n
			return nil
		},
	}
}

func uintField(ptr func(*Config) *uint64) field {
	return field{
		get: func(c *Config) string { return strconv.FormatUint(*ptr(c), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return err
			}
			*ptr(c) = n
			return nil
		},
	}
}

// Keys returns every settable configuration key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value stored under a dotted key such as "claim.tx_fee".
func (c *Config) Get(key string) (string, error) {
	f, err := lookup(key)
	if err != nil {
		return "", err
	}
	return f.get(c), nil
}

// Set parses value and stores it under a dotted key, then re-validates.
func (c *Config) Set(key, value string) error {
	f, err := lookup(key)
	if err != nil {
		return err
	}
	if err := f.set(c, strings.TrimSpace(value)); err != nil {
		return hwerr.Wrap(hwerr.ErrInvalidInput, "%s: %v", key, err)
	}
	return c.Validate()
}

func lookup(key string) (field, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if f, ok := fields[key]; ok {
		return f, nil
	}

	err := hwerr.WithDetails(hwerr.ErrUnknownConfigKey, map[string]string{"key": key})
	if s := closestKey(key); s != "" {
		err = hwerr.WithSuggestion(err, fmt.Sprintf("did you mean %q?", s))
	}
	return field{}, err
}

func closestKey(key string) string {
	best, bestDist := "", 4
	for _, k := range Keys() {
		if d := levenshtein.ComputeDistance(key, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}
