// Package devicetest provides in-memory hardware wallets for tests. Keys
// come from a BIP39 mnemonic through go-bip32, an implementation separate
// from the xpub handling under test.
package devicetest

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/wallet"
)

// TestMnemonic is the standard BIP39 test vector.
const TestMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// Keys derives keys from a seed.
type Keys struct {
	master *bip32.Key
}

// NewKeys builds a key tree from mnemonic.
func NewKeys(mnemonic string) (*Keys, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	master, err := bip32.NewMasterKey(bip39.NewSeed(mnemonic, ""))
	if err != nil {
		return nil, err
	}
	return &Keys{master: master}, nil
}

// MustKeys is NewKeys(TestMnemonic) that panics on error.
func MustKeys() *Keys {
	k, err := NewKeys(TestMnemonic)
	if err != nil {
		panic(err)
	}
	return k
}

// Derive walks path from the master key.
func (k *Keys) Derive(path accounts.DerivationPath) (*bip32.Key, error) {
	key := k.master
	for _, idx := range path {
		child, err := key.NewChildKey(idx)
		if err != nil {
			return nil, err
		}
		key = child
	}
	return key, nil
}

// Xpub returns the extended public key at path with Komodo's version bytes.
func (k *Keys) Xpub(path accounts.DerivationPath) (string, error) {
	key, err := k.Derive(path)
	if err != nil {
		return "", err
	}
	pub := key.PublicKey()
	pub.Version = chain.KomodoParams.HDPublicKeyID[:]
	return pub.B58Serialize(), nil
}

// AccountXpub returns the xpub of m/44'/141'/account'.
func (k *Keys) AccountXpub(account uint32) string {
	xpub, err := k.Xpub(device.AccountPath(account))
	if err != nil {
		panic(err)
	}
	return xpub
}

// Address returns the address at m/44'/141'/account'/change/index.
func (k *Keys) Address(account, change, index uint32) string {
	d, err := wallet.NewXpubDeriver(k.AccountXpub(account), account)
	if err != nil {
		panic(err)
	}
	a, err := d.Derive(change, index)
	if err != nil {
		panic(err)
	}
	return a.Address
}

// Uncompressed returns the uncompressed public key and chain code at path,
// as a Ledger reports them.
func (k *Keys) Uncompressed(path accounts.DerivationPath) (pub, chainCode []byte, err error) {
	key, err := k.Derive(path)
	if err != nil {
		return nil, nil, err
	}
	pk, err := btcec.ParsePubKey(key.PublicKey().Key)
	if err != nil {
		return nil, nil, err
	}
	return pk.SerializeUncompressed(), key.ChainCode, nil
}
