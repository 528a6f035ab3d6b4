package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/mrz1836/hwclaim/internal/chain"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// AddressFromPubKey encodes a compressed public key as a Komodo P2PKH address.
func AddressFromPubKey(compressed []byte) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(compressed), &chain.KomodoParams)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// ParseAddress decodes a Komodo P2PKH or P2SH address.
func ParseAddress(s string) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(s, &chain.KomodoParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", hwerr.ErrInvalidAddress, s, err)
	}

	switch addr.(type) {
	case *btcutil.AddressPubKeyHash, *btcutil.AddressScriptHash:
	default:
		return nil, fmt.Errorf("%w: %q is not a P2PKH or P2SH address", hwerr.ErrInvalidAddress, s)
	}

	if !addr.IsForNet(&chain.KomodoParams) {
		return nil, fmt.Errorf("%w: %q is not a Komodo address", hwerr.ErrInvalidAddress, s)
	}
	return addr, nil
}

// ValidateAddress reports whether s is a Komodo address.
func ValidateAddress(s string) error {
	_, err := ParseAddress(s)
	return err
}

// PayToAddrScript returns the output script paying to a Komodo address.
func PayToAddrScript(s string) ([]byte, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}
