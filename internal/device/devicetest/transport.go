package devicetest

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/mrz1836/hwclaim/internal/device"
)

// SignedHex is what the fake transports return from signing.
const SignedHex = "0400008085202f89deadbeef"

// Connector hands out the fake transports.
type Connector struct {
	Ledger *LedgerTransport
	Trezor *TrezorTransport

	mu      sync.Mutex
	opens   int
	openErr error
}

var _ device.Connector = (*Connector)(nil)

// NewConnector returns a connector with both fakes on the test mnemonic.
func NewConnector() *Connector {
	keys := MustKeys()
	return &Connector{
		Ledger: &LedgerTransport{keys: keys, App: device.LedgerApp{Name: device.LedgerAppName, Version: "2.1.0"}},
		Trezor: &TrezorTransport{keys: keys, Info: device.TrezorFeatures{
			Model: "T", MajorVersion: 2, MinorVersion: 6, PatchVersion: 0, Initialized: true,
		}},
	}
}

// FailOpen makes every open fail with err; nil restores.
func (c *Connector) FailOpen(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

// Opens returns how many transports were opened.
func (c *Connector) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// OpenLedger implements device.Connector.
func (c *Connector) OpenLedger(_ context.Context) (device.LedgerTransport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.opens++
	return c.Ledger, nil
}

// OpenTrezor implements device.Connector.
func (c *Connector) OpenTrezor(_ context.Context) (device.TrezorTransport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.opens++
	return c.Trezor, nil
}

// gate blocks signing calls until released.
type gate struct {
	mu      sync.Mutex
	hold    chan struct{}
	entered chan struct{}
	err     error
	closes  int
}

func (g *gate) holdCalls() (<-chan struct{}, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hold = make(chan struct{})
	g.entered = make(chan struct{}, 16)
	hold := g.hold
	var once sync.Once
	return g.entered, func() { once.Do(func() { close(hold) }) }
}

func (g *gate) wait(ctx context.Context) error {
	g.mu.Lock()
	hold, entered, err := g.hold, g.entered, g.err
	g.mu.Unlock()

	if hold != nil {
		entered <- struct{}{}
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *gate) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *gate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes++
}

func (g *gate) closed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closes
}

// LedgerTransport fakes the Komodo Ledger app.
type LedgerTransport struct {
	App device.LedgerApp

	keys     *Keys
	gate     gate
	mu       sync.Mutex
	requests []*device.LedgerPaymentRequest
	paths    []string
}

// AppVersion implements device.LedgerTransport.
func (t *LedgerTransport) AppVersion(_ context.Context) (*device.LedgerApp, error) {
	app := t.App
	return &app, nil
}

// GetWalletPublicKey implements device.LedgerTransport.
func (t *LedgerTransport) GetWalletPublicKey(_ context.Context, path string) (*device.LedgerPublicKey, error) {
	p, err := device.ParsePath(path)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.paths = append(t.paths, path)
	t.mu.Unlock()

	pub, cc, err := t.keys.Uncompressed(p)
	if err != nil {
		return nil, err
	}
	return &device.LedgerPublicKey{PublicKey: pub, ChainCode: cc}, nil
}

// CreatePaymentTransaction implements device.LedgerTransport.
func (t *LedgerTransport) CreatePaymentTransaction(ctx context.Context, req *device.LedgerPaymentRequest) (string, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()

	if err := t.gate.wait(ctx); err != nil {
		return "", err
	}
	return SignedHex, nil
}

// Close implements device.LedgerTransport.
func (t *LedgerTransport) Close() error {
	t.gate.close()
	return nil
}

// Hold blocks signing until release; entered fires as each call arrives.
func (t *LedgerTransport) Hold() (entered <-chan struct{}, release func()) {
	return t.gate.holdCalls()
}

// FailSigning makes signing return err; nil restores.
func (t *LedgerTransport) FailSigning(err error) { t.gate.setErr(err) }

// Closes returns how many times Close was called.
func (t *LedgerTransport) Closes() int { return t.gate.closed() }

// Requests returns the payment requests received.
func (t *LedgerTransport) Requests() []*device.LedgerPaymentRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*device.LedgerPaymentRequest(nil), t.requests...)
}

// Paths returns every path passed to GetWalletPublicKey.
func (t *LedgerTransport) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.paths...)
}

// TrezorTransport fakes Trezor Connect.
type TrezorTransport struct {
	Info device.TrezorFeatures

	keys     *Keys
	gate     gate
	mu       sync.Mutex
	requests []*device.TrezorSignRequest
}

// Features implements device.TrezorTransport.
func (t *TrezorTransport) Features(_ context.Context) (*device.TrezorFeatures, error) {
	f := t.Info
	return &f, nil
}

// GetPublicKey implements device.TrezorTransport.
func (t *TrezorTransport) GetPublicKey(_ context.Context, path, _ string) (string, error) {
	p, err := device.ParsePath(path)
	if err != nil {
		return "", err
	}
	return t.keys.Xpub(p)
}

// SignTransaction implements device.TrezorTransport.
func (t *TrezorTransport) SignTransaction(ctx context.Context, req *device.TrezorSignRequest) (string, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()

	if err := t.gate.wait(ctx); err != nil {
		return "", err
	}
	return SignedHex, nil
}

// Close implements device.TrezorTransport.
func (t *TrezorTransport) Close() error {
	t.gate.close()
	return nil
}

// Hold blocks signing until release.
func (t *TrezorTransport) Hold() (entered <-chan struct{}, release func()) {
	return t.gate.holdCalls()
}

// FailSigning makes signing return err; nil restores.
func (t *TrezorTransport) FailSigning(err error) { t.gate.setErr(err) }

// Closes returns how many times Close was called.
func (t *TrezorTransport) Closes() int { return t.gate.closed() }

// Requests returns the sign requests received.
func (t *TrezorTransport) Requests() []*device.TrezorSignRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*device.TrezorSignRequest(nil), t.requests...)
}

// SignedBytes decodes SignedHex.
func SignedBytes() []byte {
	b, _ := hex.DecodeString(SignedHex)
	return b
}
