package app

import (
	"strconv"

	"github.com/mrz1836/hwclaim/internal/session"
	"github.com/mrz1836/hwclaim/internal/wallet"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// ReceiveAddress returns the first unused external address of an account.
// It is derived from the stored xpub, so the device is not needed.
func (s *Service) ReceiveAddress(state *session.State, account uint32) (*wallet.Address, error) {
	if _, err := requireVendor(state); err != nil {
		return nil, err
	}
	if len(state.Accounts) == 0 {
		return nil, hwerr.ErrNoAccounts
	}
	acct, ok := state.Account(account)
	if !ok {
		return nil, hwerr.WithDetails(hwerr.ErrNotFound, map[string]string{
			"account": strconv.FormatUint(uint64(account), 10),
		})
	}

	d, err := wallet.NewXpubDeriver(acct.Xpub, acct.Index)
	if err != nil {
		return nil, hwerr.Wrap(hwerr.ErrInvariantViolation, "account %d xpub: %v", acct.Index, err)
	}
	return d.Derive(wallet.ExternalChain, acct.NextReceiveIndex)
}
