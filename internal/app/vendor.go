package app

import (
	"context"

	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/session"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// SelectVendor records the hardware wallet vendor for the session. A
// vendor can be chosen once; switching requires Reset.
func (s *Service) SelectVendor(state *session.State, vendor device.Vendor) (*session.State, error) {
	if !vendor.Valid() {
		return state, hwerr.WithDetails(hwerr.ErrUnknownVendor, map[string]string{"vendor": vendor.String()})
	}
	if state.HasVendor() {
		return state, hwerr.WithDetails(hwerr.ErrVendorAlreadySelected, map[string]string{
			"vendor": state.Vendor.String(),
		})
	}
	if _, err := s.device(vendor); err != nil {
		return state, err
	}

	next := state.Clone()
	next.Vendor = vendor
	s.cfg.Logger.Debug("vendor set to %s", vendor)
	return next, nil
}

// Status reports whether the selected device is connected and ready.
func (s *Service) Status(ctx context.Context, state *session.State) (*device.Status, error) {
	vendor, err := requireVendor(state)
	if err != nil {
		return nil, err
	}
	dev, err := s.device(vendor)
	if err != nil {
		return nil, err
	}
	return dev.Status(ctx)
}

// Reset drops the session: the device handle is revoked, pending device
// calls fail and the returned state is the initial one. Settings are not
// part of the session and survive.
func (s *Service) Reset(_ *session.State) (*session.State, error) {
	s.mu.Lock()
	dev := s.dev
	s.dev = nil
	s.mu.Unlock()

	if dev != nil {
		if err := dev.Reset(); err != nil {
			s.cfg.Logger.Error("resetting %s device: %v", dev.Vendor(), err)
			return session.New(), hwerr.Wrap(err, "resetting device")
		}
	}
	return session.New(), nil
}
