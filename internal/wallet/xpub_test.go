package wallet_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/wallet"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// accountKey derives m/44'/141'/account' with go-bip32, an implementation
// independent of the one under test.
func accountKey(t *testing.T, account uint32) (acct, parent *bip32.Key) {
	t.Helper()
	master, err := bip32.NewMasterKey(bip39.NewSeed(testMnemonic, ""))
	require.NoError(t, err)

	purpose, err := master.NewChildKey(bip32.FirstHardenedChild + 44)
	require.NoError(t, err)
	coin, err := purpose.NewChildKey(bip32.FirstHardenedChild + chain.CoinType)
	require.NoError(t, err)
	acct, err = coin.NewChildKey(bip32.FirstHardenedChild + account)
	require.NoError(t, err)
	return acct, coin
}

func expectedAddress(t *testing.T, acct *bip32.Key, change, index uint32) string {
	t.Helper()
	c, err := acct.NewChildKey(change)
	require.NoError(t, err)
	leaf, err := c.NewChildKey(index)
	require.NoError(t, err)
	return base58.CheckEncode(btcutil.Hash160(leaf.PublicKey().Key), chain.PubKeyHashAddrID)
}

func TestXpubDeriver_MatchesIndependentDerivation(t *testing.T) {
	t.Parallel()
	acct, _ := accountKey(t, 1)

	d, err := wallet.NewXpubDeriver(acct.PublicKey().B58Serialize(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), d.Account())

	for _, change := range []uint32{wallet.ExternalChain, wallet.InternalChain} {
		for _, index := range []uint32{0, 1, 19, 20} {
			a, err := d.Derive(change, index)
			require.NoError(t, err)
			assert.Equal(t, expectedAddress(t, acct, change, index), a.Address)
			assert.Equal(t, chain.AddressPath(1, change, index), a.Path)
			assert.Equal(t, change == wallet.InternalChain, a.IsChange())
			assert.True(t, strings.HasPrefix(a.Address, "R"), "komodo P2PKH addresses start with R")
			assert.Len(t, a.PublicKey, 66)
		}
	}
}

func TestXpubDeriver_DeriveRange(t *testing.T) {
	t.Parallel()
	acct, _ := accountKey(t, 0)
	d, err := wallet.NewXpubDeriver(acct.PublicKey().B58Serialize(), 0)
	require.NoError(t, err)

	addrs, err := d.DeriveRange(wallet.ExternalChain, 5, 3)
	require.NoError(t, err)
	require.Len(t, addrs, 3)
	for i, a := range addrs {
		assert.Equal(t, uint32(5+i), a.Index)
	}

	_, err = d.Derive(2, 0)
	require.ErrorIs(t, err, wallet.ErrInvalidChain)
}

func TestNewXpubDeriver_Rejects(t *testing.T) {
	t.Parallel()
	acct, coin := accountKey(t, 0)

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := wallet.NewXpubDeriver("xpub-not-really", 0)
		require.Error(t, err)
	})

	t.Run("private key", func(t *testing.T) {
		t.Parallel()
		_, err := wallet.NewXpubDeriver(acct.B58Serialize(), 0)
		require.ErrorIs(t, err, wallet.ErrXpubIsPrivate)
	})

	t.Run("wrong depth", func(t *testing.T) {
		t.Parallel()
		_, err := wallet.NewXpubDeriver(coin.PublicKey().B58Serialize(), 0)
		require.ErrorIs(t, err, wallet.ErrXpubDepth)
	})

	t.Run("wrong account", func(t *testing.T) {
		t.Parallel()
		_, err := wallet.NewXpubDeriver(acct.PublicKey().B58Serialize(), 4)
		require.ErrorIs(t, err, wallet.ErrXpubAccount)
	})
}

func TestAssembleXpub_MatchesBIP32(t *testing.T) {
	t.Parallel()
	acct, parent := accountKey(t, 2)
	want := acct.PublicKey().B58Serialize()

	// A Ledger reports the uncompressed key.
	pk, err := btcec.ParsePubKey(acct.PublicKey().Key)
	require.NoError(t, err)

	got, err := wallet.AssembleXpub(
		pk.SerializeUncompressed(),
		acct.ChainCode,
		parent.PublicKey().Key,
		3,
		bip32.FirstHardenedChild+2,
	)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = wallet.AssembleXpub(pk.SerializeCompressed(), acct.ChainCode[:16], parent.PublicKey().Key, 3, 0)
	require.ErrorIs(t, err, wallet.ErrChainCodeLen)

	_, err = wallet.AssembleXpub([]byte{0x01, 0x02}, acct.ChainCode, parent.PublicKey().Key, 3, 0)
	require.Error(t, err)
}

func TestAssembleXpub_ParentFingerprint(t *testing.T) {
	t.Parallel()

	for _, account := range []uint32{0, 1, 7} {
		acct, parent := accountKey(t, account)
		xpub, err := wallet.AssembleXpub(acct.PublicKey().Key, acct.ChainCode, parent.PublicKey().Key, 3, bip32.FirstHardenedChild+account)
		require.NoError(t, err)

		key, err := hdkeychain.NewKeyFromString(xpub)
		require.NoError(t, err)
		assert.Equal(t, binary.BigEndian.Uint32(acct.FingerPrint), key.ParentFingerprint(), "account %d", account)
	}
}
