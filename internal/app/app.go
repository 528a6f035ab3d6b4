// Package app implements the hwclaim operations on top of the session
// state. Every operation takes the current *session.State and returns a new
// one; the input is never modified, so a failed operation leaves the
// caller's state exactly as it was.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/claim"
	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/discovery"
	"github.com/mrz1836/hwclaim/internal/metrics"
	"github.com/mrz1836/hwclaim/internal/rewards"
	"github.com/mrz1836/hwclaim/internal/session"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// DiscoveryConfig overrides the vendor defaults of the discovery engine.
// Zero values keep the defaults.
type DiscoveryConfig struct {
	AccountGap    int
	AddressGap    int
	MaxConcurrent int
	MaxAccounts   int
	RetryAttempts int
}

// ClaimConfig holds the claim economics.
type ClaimConfig struct {
	TxFee             uint64
	ServiceFeeBPS     uint32
	ServiceFeeAddress string
}

// Config holds the dependencies of a Service.
type Config struct {
	Devices   DeviceFactory
	Explorers Explorers
	Discovery DiscoveryConfig
	Claim     ClaimConfig

	// Retry overrides the per-address retry schedule of discovery.
	Retry *chain.RetryConfig

	Progress discovery.ProgressCallback
	Metrics  *metrics.Metrics
	Logger   Logger
}

// Service runs hwclaim operations. It caches the device adapter of the
// selected vendor between operations.
type Service struct {
	cfg    Config
	calc   *rewards.Calculator
	claims *claim.Orchestrator

	mu  sync.Mutex
	dev device.Device
}

// NewService creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Devices == nil || cfg.Explorers == nil {
		return nil, fmt.Errorf("%w: device factory and explorers are required", hwerr.ErrInvalidInput)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}

	calc, err := rewards.NewCalculator(cfg.Explorers, rewards.Options{
		ServiceFeeBPS: cfg.Claim.ServiceFeeBPS,
		MaxConcurrent: cfg.Discovery.MaxConcurrent,
	})
	if err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, calc: calc}
	s.claims, err = claim.New(deviceSigner{s}, cfg.Explorers, claim.Config{
		TxFee:             cfg.Claim.TxFee,
		ServiceFeeAddress: cfg.Claim.ServiceFeeAddress,
		Metrics:           cfg.Metrics,
		Logger:            cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// TxFee returns the network fee claims pay.
func (s *Service) TxFee() uint64 {
	return s.claims.TxFee()
}

// device returns the adapter for vendor, opening it on first use.
func (s *Service) device(vendor device.Vendor) (device.Device, error) {
	if vendor == "" {
		return nil, hwerr.ErrVendorNotSelected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil && s.dev.Vendor() == vendor {
		return s.dev, nil
	}
	if s.dev != nil {
		if err := s.dev.Reset(); err != nil {
			s.cfg.Logger.Error("resetting %s device: %v", s.dev.Vendor(), err)
		}
		s.dev = nil
	}

	dev, err := s.cfg.Devices(vendor)
	if err != nil {
		return nil, err
	}
	s.dev = dev
	return dev, nil
}

// current returns the cached adapter without opening one.
func (s *Service) current() device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev
}

// deviceSigner signs with whichever adapter is current when a claim
// reaches the signing step.
type deviceSigner struct {
	s *Service
}

func (d deviceSigner) SignTransaction(ctx context.Context, tx *device.UnsignedTx) ([]byte, error) {
	dev := d.s.current()
	if dev == nil {
		return nil, hwerr.ErrVendorNotSelected
	}
	return dev.SignTransaction(ctx, tx)
}

// requireVendor returns the vendor of state or ErrVendorNotSelected.
func requireVendor(state *session.State) (device.Vendor, error) {
	if state == nil || !state.HasVendor() {
		return "", hwerr.ErrVendorNotSelected
	}
	return state.Vendor, nil
}
