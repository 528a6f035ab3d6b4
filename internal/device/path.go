package device

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"

	"github.com/mrz1836/hwclaim/internal/chain"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

const hardened = 0x80000000

// ParsePath parses an absolute BIP32 path such as m/44'/141'/0'.
// Relative paths are rejected.
func ParsePath(s string) (accounts.DerivationPath, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "m/") {
		return nil, fmt.Errorf("%w: derivation path must start with m/: %q", hwerr.ErrInvalidInput, s)
	}
	p, err := accounts.ParseDerivationPath(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", hwerr.ErrInvalidInput, err)
	}
	return p, nil
}

// AccountPath returns m/44'/141'/account'.
func AccountPath(account uint32) accounts.DerivationPath {
	return accounts.DerivationPath{
		hardened + 44,
		hardened + chain.CoinType,
		hardened + account,
	}
}

// ParentPath returns p without its last element.
func ParentPath(p accounts.DerivationPath) accounts.DerivationPath {
	if len(p) == 0 {
		return nil
	}
	parent := make(accounts.DerivationPath, len(p)-1)
	copy(parent, p)
	return parent
}

// IsAccountPath reports whether p has the m/44'/141'/n' shape.
func IsAccountPath(p accounts.DerivationPath) bool {
	return len(p) == 3 &&
		p[0] == hardened+44 &&
		p[1] == hardened+chain.CoinType &&
		p[2] >= hardened
}
