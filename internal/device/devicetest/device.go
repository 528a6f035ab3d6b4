package devicetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mrz1836/hwclaim/internal/device"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Device is a software wallet implementing device.Device. It never signs
// for real: SignTransaction returns the serialized unsigned transaction.
type Device struct {
	vendor device.Vendor
	keys   *Keys

	mu          sync.Mutex
	derivations []string
	signed      []*device.UnsignedTx
	resets      int
	deriveErr   map[string]error
	signErr     error
	hold        chan struct{}
	entered     chan struct{}
}

var _ device.Device = (*Device)(nil)

// New creates a software device for vendor on the test mnemonic.
func New(vendor device.Vendor) *Device {
	return &Device{
		vendor:    vendor,
		keys:      MustKeys(),
		deriveErr: make(map[string]error),
	}
}

// Keys exposes the key tree so tests can compute expected addresses.
func (d *Device) Keys() *Keys {
	return d.keys
}

// Vendor implements device.Device.
func (d *Device) Vendor() device.Vendor {
	return d.vendor
}

// Status implements device.Device.
func (d *Device) Status(_ context.Context) (*device.Status, error) {
	return &device.Status{Vendor: d.vendor, Connected: true, Ready: true, Model: "software"}, nil
}

// DerivePublicKey implements device.Device.
func (d *Device) DerivePublicKey(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := device.ParsePath(path)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.derivations = append(d.derivations, p.String())
	err = d.deriveErr[p.String()]
	d.mu.Unlock()
	if err != nil {
		return "", err
	}
	return d.keys.Xpub(p)
}

// SignTransaction implements device.Device.
func (d *Device) SignTransaction(ctx context.Context, tx *device.UnsignedTx) ([]byte, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.signed = append(d.signed, tx)
	err := d.signErr
	hold, entered := d.hold, d.entered
	d.mu.Unlock()

	if hold != nil {
		entered <- struct{}{}
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return tx.Serialize()
}

// Reset implements device.Device.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
	return nil
}

// FailDerive makes DerivePublicKey fail for path.
func (d *Device) FailDerive(path string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deriveErr[path] = err
}

// RejectSigning makes SignTransaction fail as if the user pressed reject.
func (d *Device) RejectSigning() {
	d.SetSignErr(fmt.Errorf("%w: user declined", hwerr.ErrDeviceRejected))
}

// SetSignErr sets the error SignTransaction returns; nil restores signing.
func (d *Device) SetSignErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signErr = err
}

// HoldSigning makes SignTransaction wait until release is called. entered
// receives once per call that reaches the wait.
func (d *Device) HoldSigning() (entered <-chan struct{}, release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = make(chan struct{})
	d.entered = make(chan struct{}, 16)
	var once sync.Once
	hold := d.hold
	return d.entered, func() { once.Do(func() { close(hold) }) }
}

// Derivations returns every path passed to DerivePublicKey.
func (d *Device) Derivations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.derivations...)
}

// SignCalls returns how many times SignTransaction was called.
func (d *Device) SignCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.signed)
}

// LastSigned returns the most recent transaction passed for signing.
func (d *Device) LastSigned() *device.UnsignedTx {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.signed) == 0 {
		return nil
	}
	return d.signed[len(d.signed)-1]
}

// Resets returns how many times Reset was called.
func (d *Device) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}
