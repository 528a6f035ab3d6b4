// Package device adapts Ledger and Trezor hardware wallets to one
// interface. The adapters only ever ask the device for public keys and
// signatures; private keys never leave it.
package device

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/metrics"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Device is a connected hardware wallet.
type Device interface {
	// Vendor returns the vendor tag the device was created with.
	Vendor() Vendor

	// Status checks that the device is present and ready.
	Status(ctx context.Context) (*Status, error)

	// DerivePublicKey returns the extended public key at path.
	DerivePublicKey(ctx context.Context, path string) (string, error)

	// SignTransaction asks the user to confirm and sign tx. It waits for
	// the human as long as ctx allows.
	SignTransaction(ctx context.Context, tx *UnsignedTx) ([]byte, error)

	// Reset fails queued calls, closes the transport and forces the next
	// call to reconnect.
	Reset() error
}

// Status describes the connected device.
type Status struct {
	Vendor     Vendor `json:"vendor"`
	Connected  bool   `json:"connected"`
	Ready      bool   `json:"ready"`
	Model      string `json:"model,omitempty"`
	Firmware   string `json:"firmware,omitempty"`
	AppName    string `json:"app_name,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	Message    string `json:"message,omitempty"`
}

// InputRef describes a spent output and the key that owns it.
type InputRef struct {
	TxID     string
	Vout     uint32
	Satoshis uint64
	Address  string
	Path     string

	// PrevTxHex is the full previous transaction; Ledger needs it.
	PrevTxHex string
}

// OutputRef describes an output. Path is set when the output pays back to
// the wallet.
type OutputRef struct {
	Address  string
	Satoshis uint64
	Path     string
}

// UnsignedTx is a transaction ready for the device. Tx carries the
// outpoints, output scripts and locktime in wire order; Inputs and Outputs
// run parallel to Tx.TxIn and Tx.TxOut.
type UnsignedTx struct {
	Tx           *wire.MsgTx
	Inputs       []InputRef
	Outputs      []OutputRef
	ChangePath   string
	LockTime     uint32
	ExpiryHeight uint32
}

// Serialize encodes the unsigned transaction in Komodo's Sapling format.
func (u *UnsignedTx) Serialize() ([]byte, error) {
	if u == nil || u.Tx == nil {
		return nil, fmt.Errorf("%w: empty transaction", hwerr.ErrInvalidInput)
	}
	return chain.SerializeSaplingTx(u.Tx, u.ExpiryHeight)
}

// Hex returns Serialize as hex.
func (u *UnsignedTx) Hex() (string, error) {
	data, err := u.Serialize()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(data), nil
}

// Validate checks the parallel slices line up with the wire transaction.
func (u *UnsignedTx) Validate() error {
	switch {
	case u == nil || u.Tx == nil:
		return fmt.Errorf("%w: empty transaction", hwerr.ErrInvalidInput)
	case len(u.Inputs) == 0 || len(u.Inputs) != len(u.Tx.TxIn):
		return fmt.Errorf("%w: %d input refs for %d inputs", hwerr.ErrInvalidInput, len(u.Inputs), len(u.Tx.TxIn))
	case len(u.Outputs) == 0 || len(u.Outputs) != len(u.Tx.TxOut):
		return fmt.Errorf("%w: %d output refs for %d outputs", hwerr.ErrInvalidInput, len(u.Outputs), len(u.Tx.TxOut))
	}
	for i, in := range u.Inputs {
		if in.Path == "" {
			return fmt.Errorf("%w: input %d has no derivation path", hwerr.ErrInvalidInput, i)
		}
	}
	return nil
}

// Connector opens vendor transports. The bridge client implements it for
// the CLI; tests use in-memory fakes.
type Connector interface {
	OpenLedger(ctx context.Context) (LedgerTransport, error)
	OpenTrezor(ctx context.Context) (TrezorTransport, error)
}

// Logger is the logging surface the adapters need.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Options configures an adapter.
type Options struct {
	Metrics *metrics.Metrics
	Logger  Logger
}

// New creates the adapter for vendor. The transport is opened lazily on
// the first call.
func New(vendor Vendor, conn Connector, opts Options) (Device, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: nil connector", hwerr.ErrInvalidInput)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Global
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}

	switch vendor {
	case Ledger:
		return newLedger(conn, opts), nil
	case Trezor:
		return newTrezor(conn, opts), nil
	}
	_, err := ParseVendor(string(vendor))
	return nil, err
}
