package app

import (
	"context"

	"github.com/mrz1836/hwclaim/internal/discovery"
	"github.com/mrz1836/hwclaim/internal/session"
)

// Sync discovers every account of the device and rebuilds the account
// list and history. Claim state is kept.
//
// A partial discovery still returns the new state, the result and
// ErrDiscoveryPartial. Any other failure returns the input state.
func (s *Service) Sync(ctx context.Context, state *session.State) (*session.State, *discovery.Result, error) {
	vendor, err := requireVendor(state)
	if err != nil {
		return state, nil, err
	}
	dev, err := s.device(vendor)
	if err != nil {
		return state, nil, err
	}

	next, _, err := s.Connect(ctx, state)
	if err != nil {
		return state, nil, err
	}

	opts := discovery.DefaultOptions(vendor)
	policy := vendor.GapPolicy().WithOverrides(s.cfg.Discovery.AccountGap, s.cfg.Discovery.AddressGap)
	opts.AccountGap = policy.AccountGap
	opts.AddressGap = policy.AddressGap
	if s.cfg.Discovery.MaxConcurrent > 0 {
		opts.MaxConcurrent = s.cfg.Discovery.MaxConcurrent
	}
	if s.cfg.Discovery.MaxAccounts > 0 {
		opts.MaxAccounts = s.cfg.Discovery.MaxAccounts
	}
	if s.cfg.Retry != nil {
		opts.Retry = *s.cfg.Retry
	}
	if s.cfg.Discovery.RetryAttempts > 0 {
		opts.Retry.MaxAttempts = s.cfg.Discovery.RetryAttempts
	}
	opts.ProgressCallback = s.cfg.Progress
	opts.Metrics = s.cfg.Metrics
	opts.Logger = s.cfg.Logger

	engine, err := discovery.NewEngine(dev, s.cfg.Explorers, s.calc, opts)
	if err != nil {
		return state, nil, err
	}

	first := next.IsFirstRun
	result, runErr := engine.Run(ctx)
	if result == nil {
		return state, nil, runErr
	}

	next.Accounts = result.Accounts
	next.TipTime = result.TipTime
	next.Warnings = result.Warnings
	next.IsFirstRun = false
	s.cfg.Logger.Debug("sync found %d accounts (first run: %t)", len(result.Accounts), first)
	return next, result, runErr
}
