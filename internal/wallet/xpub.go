// Package wallet derives Komodo addresses from account-level extended
// public keys. It never handles private key material: devices export the
// account xpub once and every receive and change address is derived
// locally from it.
package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/mrz1836/hwclaim/internal/chain"
)

// Chain indexes below an account key.
const (
	ExternalChain uint32 = 0 // receive addresses
	InternalChain uint32 = 1 // change addresses
)

// accountDepth is the depth of m/44'/141'/account'.
const accountDepth = 3

var (
	// ErrXpubIsPrivate is returned when an xprv is supplied where an xpub is expected.
	ErrXpubIsPrivate = errors.New("expected xpub but got xprv (private key)")

	// ErrXpubDepth is returned when the key is not an account-level key.
	ErrXpubDepth = errors.New("xpub is not an account-level key")

	// ErrXpubAccount is returned when the key belongs to a different account.
	ErrXpubAccount = errors.New("xpub does not match the requested account")

	// ErrInvalidChain is returned for chain indexes other than 0 and 1.
	ErrInvalidChain = errors.New("chain index must be 0 (receive) or 1 (change)")

	// ErrChainCodeLen is returned when a device reports a malformed chain code.
	ErrChainCodeLen = errors.New("chain code must be 32 bytes")
)

// Address is one derived address with its full derivation path.
type Address struct {
	Address   string `json:"address"`
	Path      string `json:"path"`
	Change    uint32 `json:"change"`
	Index     uint32 `json:"index"`
	PublicKey string `json:"public_key"`
}

// IsChange reports whether the address is on the internal chain.
func (a *Address) IsChange() bool {
	return a.Change == InternalChain
}

// XpubDeriver derives the receive and change addresses of one account.
// The two chain keys are computed once so each address costs a single
// non-hardened derivation.
type XpubDeriver struct {
	account uint32
	chains  [2]*hdkeychain.ExtendedKey
}

// NewXpubDeriver parses an account xpub and checks that it really is the
// key for m/44'/141'/account'.
func NewXpubDeriver(xpub string, account uint32) (*XpubDeriver, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, fmt.Errorf("invalid xpub: %w", err)
	}
	if key.IsPrivate() {
		return nil, ErrXpubIsPrivate
	}
	if key.Depth() != accountDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrXpubDepth, key.Depth())
	}
	if key.ChildIndex() != hdkeychain.HardenedKeyStart+account {
		return nil, fmt.Errorf("%w: want account %d", ErrXpubAccount, account)
	}

	d := &XpubDeriver{account: account}
	for _, c := range []uint32{ExternalChain, InternalChain} {
		if d.chains[c], err = key.Derive(c); err != nil {
			return nil, fmt.Errorf("deriving chain %d: %w", c, err)
		}
	}
	return d, nil
}

// Account returns the account index the deriver was built for.
func (d *XpubDeriver) Account() uint32 {
	return d.account
}

// Derive returns the address at account/change/index.
func (d *XpubDeriver) Derive(change, index uint32) (*Address, error) {
	if change > InternalChain {
		return nil, ErrInvalidChain
	}

	child, err := d.chains[change].Derive(index)
	if err != nil {
		// ErrInvalidChild happens for roughly 1 in 2^127 indexes.
		return nil, fmt.Errorf("deriving index %d: %w", index, err)
	}

	addr, err := child.Address(&chain.KomodoParams)
	if err != nil {
		return nil, fmt.Errorf("encoding address: %w", err)
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	return &Address{
		Address:   addr.EncodeAddress(),
		Path:      chain.AddressPath(d.account, change, index),
		Change:    change,
		Index:     index,
		PublicKey: hex.EncodeToString(pub.SerializeCompressed()),
	}, nil
}

// DeriveRange derives count consecutive addresses starting at start.
func (d *XpubDeriver) DeriveRange(change, start, count uint32) ([]*Address, error) {
	out := make([]*Address, 0, count)
	for i := start; i < start+count; i++ {
		a, err := d.Derive(change, i)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// AssembleXpub builds a base58 xpub from the pieces a Ledger returns: the
// account public key (compressed or uncompressed), its chain code, and the
// parent public key used for the fingerprint.
func AssembleXpub(pubKey, chainCode, parentPubKey []byte, depth uint8, childIndex uint32) (string, error) {
	pk, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}
	parent, err := btcec.ParsePubKey(parentPubKey)
	if err != nil {
		return "", fmt.Errorf("invalid parent public key: %w", err)
	}
	if len(chainCode) != 32 {
		return "", fmt.Errorf("%w: got %d bytes", ErrChainCodeLen, len(chainCode))
	}

	fp := btcutil.Hash160(parent.SerializeCompressed())[:4]
	key := hdkeychain.NewExtendedKey(
		chain.KomodoParams.HDPublicKeyID[:],
		pk.SerializeCompressed(),
		chainCode,
		fp,
		depth,
		childIndex,
		false,
	)
	return key.String(), nil
}
