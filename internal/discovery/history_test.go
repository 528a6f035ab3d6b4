package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/explorer"
)

func out(addr string, sats uint64) explorer.TxOutput {
	return explorer.TxOutput{
		Value:        explorer.FlexString(chain.FormatKMD(sats)),
		ScriptPubKey: explorer.ScriptPubKey{Addresses: []string{addr}},
	}
}

func TestBuildHistory(t *testing.T) {
	t.Parallel()
	addrs := []AddressInfo{{Address: "RMine1"}, {Address: "RMine2"}}

	txs := []explorer.Transaction{
		{
			TxID: "recv", BlockTime: 100,
			Vin:  []explorer.TxInput{{Address: "RThem", ValueSat: 600}},
			Vout: []explorer.TxOutput{out("RMine1", 500), out("RThem", 90)},
		},
		{
			TxID: "send", BlockTime: 300,
			Vin:  []explorer.TxInput{{Address: "RMine1", ValueSat: 500}},
			Vout: []explorer.TxOutput{out("RThem", 200), out("RMine2", 290)},
		},
		{
			TxID: "claim", BlockTime: 200,
			Vin:  []explorer.TxInput{{Address: "RMine2", ValueSat: 1000}},
			Vout: []explorer.TxOutput{out("RMine1", 1040)},
		},
	}
	// The same transaction reported by a second address is merged.
	txs = append(txs, txs[1])

	h := buildHistory(txs, addrs)
	require.Len(t, h, 3)

	assert.Equal(t, "send", h[0].TxID)
	assert.Equal(t, DirectionSent, h[0].Direction)
	assert.Equal(t, uint64(210), h[0].Amount)

	assert.Equal(t, "claim", h[1].TxID)
	assert.Equal(t, DirectionSelf, h[1].Direction)
	assert.Equal(t, uint64(40), h[1].Amount)

	assert.Equal(t, "recv", h[2].TxID)
	assert.Equal(t, DirectionReceived, h[2].Direction)
	assert.Equal(t, uint64(500), h[2].Amount)
	assert.Equal(t, int64(100), h[2].Timestamp)
}

func TestBuildHistory_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, buildHistory(nil, nil))
}
