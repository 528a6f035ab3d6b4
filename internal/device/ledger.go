package device

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/wallet"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// LedgerAppName is the name the Komodo app reports.
const LedgerAppName = "Komodo"

// Ledger signing constants.
const (
	sigHashAll          = 1
	ledgerAdditionalsSP = "sapling"
)

// LedgerTransport speaks to the Komodo app on a Ledger device.
type LedgerTransport interface {
	AppVersion(ctx context.Context) (*LedgerApp, error)
	GetWalletPublicKey(ctx context.Context, path string) (*LedgerPublicKey, error)
	CreatePaymentTransaction(ctx context.Context, req *LedgerPaymentRequest) (string, error)
	Close() error
}

// LedgerApp is the running app on the device.
type LedgerApp struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// LedgerPublicKey is the raw key material the app returns. PublicKey is the
// uncompressed SEC encoding.
type LedgerPublicKey struct {
	PublicKey []byte
	ChainCode []byte
	Address   string
}

// LedgerInput is one spent output in a payment request.
type LedgerInput struct {
	PrevTxHex string `json:"prevTxHex"`
	Vout      uint32 `json:"vout"`
	Sequence  uint32 `json:"sequence"`
}

// LedgerPaymentRequest mirrors createPaymentTransaction of the Ledger BTC
// app libraries.
type LedgerPaymentRequest struct {
	Inputs            []LedgerInput `json:"inputs"`
	AssociatedKeysets []string      `json:"associatedKeysets"`
	ChangePath        string        `json:"changePath,omitempty"`
	OutputScriptHex   string        `json:"outputScriptHex"`
	LockTime          uint32        `json:"lockTime"`
	SigHashType       uint32        `json:"sigHashType"`
	Additionals       []string      `json:"additionals"`
	ExpiryHeight      string        `json:"expiryHeight"`
}

type ledger struct {
	runner
	conn Connector

	mu        sync.Mutex
	transport LedgerTransport
}

func newLedger(conn Connector, opts Options) *ledger {
	return &ledger{runner: newRunner(Ledger, opts), conn: conn}
}

func (l *ledger) Vendor() Vendor { return Ledger }

func (l *ledger) open(ctx context.Context) (LedgerTransport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.transport != nil {
		return l.transport, nil
	}
	t, err := l.conn.OpenLedger(ctx)
	if err != nil {
		return nil, err
	}
	l.transport = t
	return t, nil
}

func (l *ledger) Status(ctx context.Context) (*Status, error) {
	var st *Status
	err := l.run(ctx, "status", func(ctx context.Context) error {
		t, err := l.open(ctx)
		if err != nil {
			return err
		}
		app, err := t.AppVersion(ctx)
		if err != nil {
			return err
		}
		st = &Status{
			Vendor:     Ledger,
			Connected:  true,
			Ready:      strings.EqualFold(app.Name, LedgerAppName),
			AppName:    app.Name,
			AppVersion: app.Version,
		}
		if !st.Ready {
			st.Message = fmt.Sprintf("open the %s app on the device", LedgerAppName)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// DerivePublicKey asks for the key at path and at its parent, then builds
// the xpub locally with the parent fingerprint.
func (l *ledger) DerivePublicKey(ctx context.Context, path string) (string, error) {
	p, err := ParsePath(path)
	if err != nil {
		return "", err
	}
	if len(p) < 2 {
		return "", fmt.Errorf("%w: path %s is too shallow", hwerr.ErrInvalidInput, path)
	}

	var xpub string
	err = l.run(ctx, "derive_public_key", func(ctx context.Context) error {
		t, err := l.open(ctx)
		if err != nil {
			return err
		}
		key, err := t.GetWalletPublicKey(ctx, p.String())
		if err != nil {
			return err
		}
		parent, err := t.GetWalletPublicKey(ctx, ParentPath(p).String())
		if err != nil {
			return err
		}
		xpub, err = wallet.AssembleXpub(key.PublicKey, key.ChainCode, parent.PublicKey,
			uint8(len(p)), p[len(p)-1]) //nolint:gosec // G115: BIP32 depth fits
		if err != nil {
			return fmt.Errorf("%w: assembling xpub: %w", hwerr.ErrDevice, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return xpub, nil
}

func (l *ledger) SignTransaction(ctx context.Context, tx *UnsignedTx) ([]byte, error) {
	req, err := ledgerRequest(tx)
	if err != nil {
		return nil, err
	}

	var signed []byte
	err = l.run(ctx, "sign_transaction", func(ctx context.Context) error {
		t, err := l.open(ctx)
		if err != nil {
			return err
		}
		out, err := t.CreatePaymentTransaction(ctx, req)
		if err != nil {
			return err
		}
		signed, err = hex.DecodeString(strings.TrimSpace(out))
		if err != nil || len(signed) == 0 {
			return fmt.Errorf("%w: device returned malformed transaction", hwerr.ErrDevice)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return signed, nil
}

func (l *ledger) Reset() error {
	l.queue.resetAll()

	l.mu.Lock()
	t := l.transport
	l.transport = nil
	l.mu.Unlock()

	if t == nil {
		return nil
	}
	return t.Close()
}

func ledgerRequest(tx *UnsignedTx) (*LedgerPaymentRequest, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	outputs, err := chain.SerializeOutputs(tx.Tx.TxOut)
	if err != nil {
		return nil, fmt.Errorf("%w: serializing outputs: %w", hwerr.ErrInvalidInput, err)
	}

	req := &LedgerPaymentRequest{
		Inputs:            make([]LedgerInput, len(tx.Inputs)),
		AssociatedKeysets: make([]string, len(tx.Inputs)),
		ChangePath:        tx.ChangePath,
		OutputScriptHex:   hex.EncodeToString(outputs),
		LockTime:          tx.LockTime,
		SigHashType:       sigHashAll,
		Additionals:       []string{ledgerAdditionalsSP},
		ExpiryHeight:      expiryHex(tx.ExpiryHeight),
	}
	for i, in := range tx.Inputs {
		if in.PrevTxHex == "" {
			return nil, fmt.Errorf("%w: input %d is missing its previous transaction", hwerr.ErrInvalidInput, i)
		}
		req.Inputs[i] = LedgerInput{
			PrevTxHex: in.PrevTxHex,
			Vout:      in.Vout,
			Sequence:  tx.Tx.TxIn[i].Sequence,
		}
		req.AssociatedKeysets[i] = strings.TrimPrefix(in.Path, "m/")
	}
	return req, nil
}

// expiryHex encodes the expiry height little-endian, as the app expects.
func expiryHex(height uint32) string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], height)
	return hex.EncodeToString(b[:])
}
