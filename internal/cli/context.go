package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/app"
	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/config"
	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/device/bridge"
	"github.com/mrz1836/hwclaim/internal/discovery"
	"github.com/mrz1836/hwclaim/internal/endpoint"
	"github.com/mrz1836/hwclaim/internal/explorer"
	"github.com/mrz1836/hwclaim/internal/metrics"
	"github.com/mrz1836/hwclaim/internal/output"
	"github.com/mrz1836/hwclaim/internal/session"
)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Config    *config.Config
	Logger    *config.Logger
	Formatter *output.Formatter
	Store     *session.Store
	Service   *app.Service
}

// ServiceFactory builds the application service for a command. Tests
// replace it to run commands against fakes.
type ServiceFactory func(cfg *config.Config, log *config.Logger, progress discovery.ProgressCallback) (*app.Service, error)

//nolint:gochecknoglobals // replaced in tests
var newService ServiceFactory = NewService

// NewCommandContext creates a context from the global state.
func NewCommandContext(progress discovery.ProgressCallback) (*CommandContext, error) {
	svc, err := newService(cfg, logger, progress)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Config:    cfg,
		Logger:    logger,
		Formatter: formatter,
		Store:     store,
		Service:   svc,
	}, nil
}

// NewService wires the explorer endpoints, the device bridge and the claim
// economics from configuration.
func NewService(c *config.Config, log *config.Logger, progress discovery.ProgressCallback) (*app.Service, error) {
	limiter := chain.NewRateLimiter(c.Explorer.RatePerSecond, c.Explorer.Burst)
	timeout := seconds(c.Explorer.TimeoutSeconds)

	endpoints := make([]endpoint.Endpoint, 0, len(c.Explorer.Endpoints))
	for _, ep := range c.Explorer.Endpoints {
		endpoints = append(endpoints, endpoint.Endpoint{Name: ep.Name, BaseURL: config.SanitizeURL(ep.URL)})
	}

	sel, err := endpoint.NewSelector(endpoints, func(ep endpoint.Endpoint) explorer.API {
		return explorer.NewClient(explorer.Options{
			Name:    ep.Name,
			BaseURL: ep.BaseURL,
			Timeout: timeout,
			Limiter: limiter,
			Metrics: metrics.Global,
			Logger:  log,
		})
	}, endpoint.Options{
		ProbeTimeout: seconds(c.Explorer.ProbeTimeoutSeconds),
		Logger:       log,
		Metrics:      metrics.Global,
	})
	if err != nil {
		return nil, err
	}

	conn := bridge.New(bridge.Options{URL: c.Device.BridgeURL})

	return app.NewService(app.Config{
		Devices: func(v device.Vendor) (device.Device, error) {
			return device.New(v, conn, device.Options{Metrics: metrics.Global, Logger: log})
		},
		Explorers: sel,
		Discovery: app.DiscoveryConfig{
			AccountGap:    c.Discovery.AccountGap,
			AddressGap:    c.Discovery.AddressGap,
			MaxConcurrent: c.Discovery.MaxConcurrent,
			MaxAccounts:   c.Discovery.MaxAccounts,
			RetryAttempts: c.Discovery.RetryAttempts,
		},
		Claim: app.ClaimConfig{
			TxFee:             c.Claim.TxFee,
			ServiceFeeBPS:     uint32(c.Claim.ServiceFeeBPS), //nolint:gosec // validated to be at most 10000
			ServiceFeeAddress: c.Claim.ServiceFeeAddress,
		},
		Progress: progress,
		Metrics:  metrics.Global,
		Logger:   log,
	})
}

// loadState reads the session. A corrupted file is reported and replaced by
// a fresh session. A preferred explorer from config or --explorer is pinned
// into the session unless the user already pinned one.
func (c *CommandContext) loadState() (*session.State, error) {
	state, err := c.Store.Load()
	if err != nil {
		if !errors.Is(err, session.ErrCorrupted) {
			return nil, err
		}
		c.Formatter.Warnf("%v; starting a new session", err)
		c.Logger.Error("loading session: %v", err)
	}
	if pref := c.Config.Explorer.Preferred; pref != "" && !state.ExplorerPinned {
		state.ExplorerEndpoint = pref
		state.ExplorerPinned = true
	}
	return state, nil
}

// saveState persists the session, logging instead of failing so the result
// of a finished operation is still shown.
func (c *CommandContext) saveState(state *session.State) error {
	if err := c.Store.Save(state); err != nil {
		c.Logger.Error("saving session: %v", err)
		return err
	}
	return nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
