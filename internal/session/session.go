// Package session holds the application state shared by separate hwclaim
// invocations: the selected vendor, the discovered accounts, the active
// explorer endpoint and the claim state of every account.
//
// A State is a plain value. Operations in internal/app take one and return a
// new one; nothing below the app layer mutates it.
package session

import (
	"slices"
	"time"

	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/discovery"
)

// ClaimState records whether an account's rewards were claimed. Once
// IsClaimed is set it is never cleared except by a full reset.
type ClaimState struct {
	IsClaimed bool      `json:"is_claimed"`
	ClaimTxID string    `json:"claim_txid,omitempty"`
	ClaimedAt time.Time `json:"claimed_at,omitzero"`
}

// State is the persisted application state.
type State struct {
	Vendor   device.Vendor       `json:"vendor,omitempty"`
	Accounts []discovery.Account `json:"accounts,omitempty"`
	TipTime  int64               `json:"tip_time,omitempty"`

	// ExplorerEndpoint is the name of the endpoint the last probe or
	// explicit switch committed to. ExplorerPinned is set when the user
	// chose it with "endpoint use"; pinned endpoints are not re-probed.
	ExplorerEndpoint string `json:"explorer_endpoint,omitempty"`
	ExplorerPinned   bool   `json:"explorer_pinned,omitempty"`

	// IsFirstRun is true until the first successful discovery.
	IsFirstRun bool `json:"is_first_run"`

	Claims    map[uint32]ClaimState `json:"claims,omitempty"`
	Warnings  []string              `json:"warnings,omitempty"`
	UpdatedAt time.Time             `json:"updated_at,omitzero"`
}

// New returns the initial state.
func New() *State {
	return &State{
		IsFirstRun: true,
		Claims:     make(map[uint32]ClaimState),
	}
}

// Clone returns a copy whose account list and claim map can be replaced
// without affecting s.
func (s *State) Clone() *State {
	if s == nil {
		return New()
	}
	out := *s
	out.Accounts = slices.Clone(s.Accounts)
	out.Warnings = slices.Clone(s.Warnings)
	out.Claims = make(map[uint32]ClaimState, len(s.Claims))
	for k, v := range s.Claims {
		out.Claims[k] = v
	}
	return &out
}

// HasVendor reports whether a vendor was selected.
func (s *State) HasVendor() bool {
	return s.Vendor != ""
}

// Account returns the account with the given index.
func (s *State) Account(index uint32) (*discovery.Account, bool) {
	for i := range s.Accounts {
		if s.Accounts[i].Index == index {
			return &s.Accounts[i], true
		}
	}
	return nil, false
}

// ClaimFor returns the claim state of an account. Unknown accounts are
// unclaimed.
func (s *State) ClaimFor(index uint32) ClaimState {
	if s.Claims == nil {
		return ClaimState{}
	}
	return s.Claims[index]
}

// TotalBalance sums the balance of every account.
func (s *State) TotalBalance() uint64 {
	var total uint64
	for i := range s.Accounts {
		total += s.Accounts[i].Balance
	}
	return total
}

// TotalClaimable sums the claimable rewards of accounts not yet claimed.
func (s *State) TotalClaimable() uint64 {
	var total uint64
	for i := range s.Accounts {
		if s.ClaimFor(s.Accounts[i].Index).IsClaimed {
			continue
		}
		total += s.Accounts[i].DisplayClaimable()
	}
	return total
}
