package device_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/device"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

func TestParseVendor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    device.Vendor
		wantErr bool
	}{
		{"ledger", device.Ledger, false},
		{"Trezor", device.Trezor, false},
		{"  LEDGER ", device.Ledger, false},
		{"keepkey", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			v, err := device.ParseVendor(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, hwerr.ErrUnknownVendor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.True(t, v.Valid())
		})
	}
}

func TestVendor_DisplayName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Ledger", device.Ledger.DisplayName())
	assert.Equal(t, "Trezor", device.Trezor.DisplayName())
	assert.False(t, device.Vendor("x").Valid())
}

func TestGapPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		vendor device.Vendor
		want   device.GapPolicy
	}{
		{device.Ledger, device.GapPolicy{AccountGap: 1, AddressGap: 20}},
		{device.Trezor, device.GapPolicy{AccountGap: 1, AddressGap: 20}},
		{device.Vendor("keepkey"), device.GapPolicy{AccountGap: device.DefaultAccountGap, AddressGap: device.DefaultAddressGap}},
	}
	for _, tt := range tests {
		t.Run(tt.vendor.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.vendor.GapPolicy())
		})
	}

	p := device.Ledger.GapPolicy().WithOverrides(0, 5)
	assert.Equal(t, device.GapPolicy{AccountGap: 1, AddressGap: 5}, p)
}

func TestPaths(t *testing.T) {
	t.Parallel()

	for _, n := range []uint32{0, 1, 42} {
		p := device.AccountPath(n)
		assert.Equal(t, chain.AccountPath(n), p.String())
		assert.True(t, device.IsAccountPath(p))

		parsed, err := device.ParsePath(chain.AccountPath(n))
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	leaf, err := device.ParsePath(chain.AddressPath(0, 1, 7))
	require.NoError(t, err)
	assert.False(t, device.IsAccountPath(leaf))
	assert.Equal(t, "m/44'/141'/0'/1", device.ParentPath(leaf).String())
	assert.Nil(t, device.ParentPath(nil))
}
