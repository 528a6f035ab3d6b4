package app

import (
	"context"
	"strconv"

	"github.com/mrz1836/hwclaim/internal/claim"
	"github.com/mrz1836/hwclaim/internal/session"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Claim claims the rewards of one account. On success the returned state
// marks the account claimed and carries its post-claim UTXOs. Dry runs and
// failures return the input state.
func (s *Service) Claim(ctx context.Context, state *session.State, account uint32, opts claim.Options) (*session.State, *claim.Result, error) {
	vendor, err := requireVendor(state)
	if err != nil {
		return state, nil, err
	}
	if len(state.Accounts) == 0 {
		return state, nil, hwerr.ErrNoAccounts
	}
	acct, ok := state.Account(account)
	if !ok {
		return state, nil, hwerr.WithDetails(hwerr.ErrNotFound, map[string]string{
			"account": strconv.FormatUint(uint64(account), 10),
		})
	}

	claimState := state.ClaimFor(account)
	// Refused claims are decided by the orchestrator without the device.
	if !opts.DryRun && !claimState.IsClaimed && !acct.Incomplete {
		if _, err := s.device(vendor); err != nil {
			return state, nil, err
		}
		if _, _, err := s.Connect(ctx, state); err != nil {
			return state, nil, err
		}
	}

	res, err := s.claims.Claim(ctx, acct, claimState, state.TipTime, opts)
	if err != nil {
		return state, nil, err
	}
	if res.DryRun {
		return state, res, nil
	}

	next := state.Clone()
	next.Claims[account] = res.State
	for i := range next.Accounts {
		if next.Accounts[i].Index == account && res.Updated != nil {
			next.Accounts[i] = *res.Updated
		}
	}
	return next, res, nil
}
