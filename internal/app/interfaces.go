package app

import (
	"context"

	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/endpoint"
	"github.com/mrz1836/hwclaim/internal/explorer"
)

// DeviceFactory opens the adapter for a vendor. The adapter must not
// contact the device until it is used.
type DeviceFactory func(vendor device.Vendor) (device.Device, error)

// Explorers routes explorer calls to the active endpoint and manages which
// endpoint is active. *endpoint.Selector satisfies it.
type Explorers interface {
	explorer.API
	Probe(ctx context.Context) (endpoint.Endpoint, error)
	Use(ctx context.Context, name string) (endpoint.Endpoint, error)
	Active() (endpoint.Endpoint, error)
	Endpoints() []endpoint.Endpoint
}

// Logger is the logging surface the service needs.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
