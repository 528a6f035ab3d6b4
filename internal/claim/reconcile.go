package claim

import (
	"slices"
	"time"

	"github.com/mrz1836/hwclaim/internal/discovery"
	"github.com/mrz1836/hwclaim/internal/explorer"
)

// Reconcile returns the account as it stands once the claim transaction
// txid is accepted. acct is not modified.
//
// Every old UTXO is spent. The outputs that pay the account itself become
// its new, unconfirmed UTXOs, so the balance is principal plus reward.
// Rewards reset to zero because unconfirmed outputs accrue nothing.
func Reconcile(acct *discovery.Account, plan *Plan, txid string, now time.Time) *discovery.Account {
	out := *acct
	out.Addresses = slices.Clone(acct.Addresses)
	out.UTXOs = nil
	out.Rewards = 0
	out.ServiceFee = 0
	out.ClaimableAmount = 0

	own := make(map[string]bool, len(out.Addresses)+2)
	for _, a := range out.Addresses {
		own[a.Address] = true
	}

	if plan.DestinationAt != nil {
		out.Addresses = append(out.Addresses, discovery.AddressInfo{
			Address: plan.DestinationAt.Address,
			Path:    plan.DestinationAt.Path,
			Index:   plan.DestinationAt.Index,
			Used:    true,
		})
		own[plan.DestinationAt.Address] = true
		out.NextReceiveIndex = plan.DestinationAt.Index + 1
	}
	out.Addresses = append(out.Addresses, discovery.AddressInfo{
		Address:  plan.Change.Address,
		Path:     plan.Change.Path,
		IsChange: true,
		Index:    plan.Change.Index,
		Used:     true,
	})
	own[plan.Change.Address] = true
	out.NextChangeIndex = plan.Change.Index + 1

	var balance uint64
	direction := discovery.DirectionSelf
	for vout, o := range plan.Tx.Outputs {
		if !own[o.Address] {
			direction = discovery.DirectionSent
			continue
		}
		out.UTXOs = append(out.UTXOs, explorer.UTXO{
			TxID:     txid,
			Vout:     uint32(vout), //nolint:gosec // G115: output count is tiny
			Satoshis: o.Satoshis,
			Address:  o.Address,
			Locktime: plan.LockTime,
		})
		balance += o.Satoshis
	}
	out.Balance = balance

	perAddr := make(map[string]uint64, len(out.UTXOs))
	for _, u := range out.UTXOs {
		perAddr[u.Address] += u.Satoshis
	}
	for i := range out.Addresses {
		out.Addresses[i].Balance = perAddr[out.Addresses[i].Address]
	}

	var spent uint64
	for _, in := range plan.Tx.Inputs {
		spent += in.Satoshis
	}
	entry := discovery.TxSummary{
		TxID:      txid,
		Timestamp: now.Unix(),
		Direction: direction,
		Amount:    absDiff(spent, balance),
	}
	out.History = append(discovery.History{entry}, acct.History...)
	return &out
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
