package discovery

import (
	"sort"

	"github.com/mrz1836/hwclaim/internal/explorer"
)

// buildHistory merges the transactions seen on every address of an
// account into one list. A transaction touching several addresses appears
// once, with the account's net movement.
func buildHistory(txs []explorer.Transaction, addrs []AddressInfo) History {
	own := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		own[a.Address] = true
	}

	seen := make(map[string]bool, len(txs))
	history := make(History, 0, len(txs))
	for i := range txs {
		tx := &txs[i]
		if seen[tx.TxID] {
			continue
		}
		seen[tx.TxID] = true
		history = append(history, summarize(tx, own))
	}

	sort.SliceStable(history, func(i, j int) bool {
		if history[i].Timestamp != history[j].Timestamp {
			return history[i].Timestamp > history[j].Timestamp
		}
		return history[i].TxID < history[j].TxID
	})
	return history
}

func summarize(tx *explorer.Transaction, own map[string]bool) TxSummary {
	var sent, received uint64
	for _, in := range tx.Vin {
		if own[in.Address] {
			sent += in.ValueSat
		}
	}

	allOwn := len(tx.Vout) > 0
	for i := range tx.Vout {
		out := &tx.Vout[i]
		mine := false
		for _, a := range out.ScriptPubKey.Addresses {
			if own[a] {
				mine = true
				break
			}
		}
		if !mine {
			allOwn = false
			continue
		}
		sats, err := out.Satoshis()
		if err == nil {
			received += sats
		}
	}

	s := TxSummary{
		TxID:          tx.TxID,
		Timestamp:     tx.Timestamp(),
		Height:        tx.BlockHeight,
		Confirmations: tx.Confirmations,
	}
	switch {
	case sent == 0:
		s.Direction = DirectionReceived
		s.Amount = received
	case allOwn:
		s.Direction = DirectionSelf
		s.Amount = absDiff(received, sent)
	case received > sent:
		s.Direction = DirectionReceived
		s.Amount = received - sent
	default:
		s.Direction = DirectionSent
		s.Amount = sent - received
	}
	return s
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
