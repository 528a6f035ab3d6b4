package device

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/mrz1836/hwclaim/internal/chain"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// TrezorCoin is the coin name Trezor firmware uses for KMD.
const TrezorCoin = "Komodo"

// Trezor script types.
const (
	TrezorSpendAddress = "SPENDADDRESS"
	TrezorPayToAddress = "PAYTOADDRESS"
)

// TrezorTransport speaks Trezor Connect style messages.
type TrezorTransport interface {
	Features(ctx context.Context) (*TrezorFeatures, error)
	GetPublicKey(ctx context.Context, path, coin string) (string, error)
	SignTransaction(ctx context.Context, req *TrezorSignRequest) (string, error)
	Close() error
}

// TrezorFeatures is the subset of the Features message we read.
type TrezorFeatures struct {
	Model        string `json:"model"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
	PatchVersion int    `json:"patch_version"`
	Initialized  bool   `json:"initialized"`
	Label        string `json:"label,omitempty"`
}

// Firmware formats the firmware version.
func (f *TrezorFeatures) Firmware() string {
	return fmt.Sprintf("%d.%d.%d", f.MajorVersion, f.MinorVersion, f.PatchVersion)
}

// TrezorInput is one input of a sign request.
type TrezorInput struct {
	AddressN   string `json:"address_n"`
	PrevHash   string `json:"prev_hash"`
	PrevIndex  uint32 `json:"prev_index"`
	Amount     string `json:"amount"`
	Sequence   uint32 `json:"sequence"`
	ScriptType string `json:"script_type"`
}

// TrezorOutput is one output of a sign request. Exactly one of Address and
// AddressN is set.
type TrezorOutput struct {
	Address    string `json:"address,omitempty"`
	AddressN   string `json:"address_n,omitempty"`
	Amount     string `json:"amount"`
	ScriptType string `json:"script_type"`
}

// TrezorSignRequest carries an overwintered Sapling transaction.
type TrezorSignRequest struct {
	Coin           string         `json:"coin"`
	Inputs         []TrezorInput  `json:"inputs"`
	Outputs        []TrezorOutput `json:"outputs"`
	LockTime       uint32         `json:"locktime"`
	Version        int32          `json:"version"`
	VersionGroupID uint32         `json:"version_group_id"`
	BranchID       uint32         `json:"branch_id"`
	Expiry         uint32         `json:"expiry"`
	Overwintered   bool           `json:"overwintered"`
}

type trezor struct {
	runner
	conn Connector

	mu        sync.Mutex
	transport TrezorTransport
}

func newTrezor(conn Connector, opts Options) *trezor {
	return &trezor{runner: newRunner(Trezor, opts), conn: conn}
}

func (t *trezor) Vendor() Vendor { return Trezor }

func (t *trezor) open(ctx context.Context) (TrezorTransport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.transport != nil {
		return t.transport, nil
	}
	tr, err := t.conn.OpenTrezor(ctx)
	if err != nil {
		return nil, err
	}
	t.transport = tr
	return tr, nil
}

func (t *trezor) Status(ctx context.Context) (*Status, error) {
	var st *Status
	err := t.run(ctx, "status", func(ctx context.Context) error {
		tr, err := t.open(ctx)
		if err != nil {
			return err
		}
		f, err := tr.Features(ctx)
		if err != nil {
			return err
		}
		st = &Status{
			Vendor:    Trezor,
			Connected: true,
			Ready:     f.Initialized,
			Model:     f.Model,
			Firmware:  f.Firmware(),
		}
		if !f.Initialized {
			st.Message = "device is not initialized"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (t *trezor) DerivePublicKey(ctx context.Context, path string) (string, error) {
	p, err := ParsePath(path)
	if err != nil {
		return "", err
	}

	var xpub string
	err = t.run(ctx, "derive_public_key", func(ctx context.Context) error {
		tr, err := t.open(ctx)
		if err != nil {
			return err
		}
		xpub, err = tr.GetPublicKey(ctx, p.String(), TrezorCoin)
		if err != nil {
			return err
		}
		key, err := hdkeychain.NewKeyFromString(xpub)
		if err != nil || key.IsPrivate() {
			return fmt.Errorf("%w: device returned malformed xpub", hwerr.ErrDevice)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return xpub, nil
}

func (t *trezor) SignTransaction(ctx context.Context, tx *UnsignedTx) ([]byte, error) {
	req, err := trezorRequest(tx)
	if err != nil {
		return nil, err
	}

	var signed []byte
	err = t.run(ctx, "sign_transaction", func(ctx context.Context) error {
		tr, err := t.open(ctx)
		if err != nil {
			return err
		}
		out, err := tr.SignTransaction(ctx, req)
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

func (t *trezor) Reset() error {
	t.queue.resetAll()

	t.mu.Lock()
	tr := t.transport
	t.transport = nil
	t.mu.Unlock()

	if tr == nil {
		return nil
	}
	return tr.Close()
}

func trezorRequest(tx *UnsignedTx) (*TrezorSignRequest, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	req := &TrezorSignRequest{
		Coin:           TrezorCoin,
		Inputs:         make([]TrezorInput, len(tx.Inputs)),
		Outputs:        make([]TrezorOutput, len(tx.Outputs)),
		LockTime:       tx.LockTime,
		Version:        chain.SaplingVersion,
		VersionGroupID: chain.SaplingVersionGroupID,
		BranchID:       chain.SaplingBranchID,
		Expiry:         tx.ExpiryHeight,
		Overwintered:   true,
	}
	for i, in := range tx.Inputs {
		req.Inputs[i] = TrezorInput{
			AddressN:   in.Path,
			PrevHash:   in.TxID,
			PrevIndex:  in.Vout,
			Amount:     strconv.FormatUint(in.Satoshis, 10),
			Sequence:   tx.Tx.TxIn[i].Sequence,
			ScriptType: TrezorSpendAddress,
		}
	}
	for i, out := range tx.Outputs {
		o := TrezorOutput{
			Amount:     strconv.FormatUint(out.Satoshis, 10),
			ScriptType: TrezorPayToAddress,
		}
		if out.Path != "" {
			o.AddressN = out.Path
		} else {
			o.Address = out.Address
		}
		req.Outputs[i] = o
	}
	return req, nil
}
