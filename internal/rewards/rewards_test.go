package rewards_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/explorer"
	"github.com/mrz1836/hwclaim/internal/rewards"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

const (
	tip      int64 = 1_700_000_000
	day      int64 = 24 * 3600
	twentyKM       = 2_000_000_000
)

func lockAgo(seconds int64) uint32 {
	return uint32(tip - seconds) //nolint:gosec // test values fit
}

func TestForUTXO(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		sats     uint64
		locktime uint32
		height   int64
		want     uint64
	}{
		{"one day", twentyKM, lockAgo(day), 3_000_000, 190 * 1381},
		{"capped at 31 days", twentyKM, lockAgo(40 * day), 3_000_000, 190 * (31*1440 - 59)},
		{"old era capped at a year", twentyKM, lockAgo(400 * day), 900_000, 190 * (365*1440 - 59)},
		{"old era 40 days", twentyKM, lockAgo(40 * day), 900_000, 190 * (40*1440 - 59)},
		{"exactly one hour", twentyKM, lockAgo(3600), 3_000_000, 190},
		{"under one hour", twentyKM, lockAgo(3599), 3_000_000, 0},
		{"below 10 KMD", 999_999_999, lockAgo(day), 3_000_000, 0},
		{"height locktime", twentyKM, 1_000_000, 3_000_000, 0},
		{"after end of era", twentyKM, lockAgo(day), 7_777_777, 0},
		{"unconfirmed", twentyKM, lockAgo(day), 0, 0},
		{"locktime in the future", twentyKM, uint32(tip + 60), 3_000_000, 0}, //nolint:gosec // fits
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, rewards.ForUTXO(tt.sats, tt.locktime, tt.height, tip))
		})
	}
}

func TestServiceFee(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint64(0), rewards.ServiceFee(262390, 0))
	assert.Equal(t, uint64(6559), rewards.ServiceFee(262390, 250))
	assert.Equal(t, uint64(262390), rewards.ServiceFee(262390, 10_000))
	assert.Equal(t, uint64(0), rewards.ServiceFee(0, 500))
}

type fakeFetcher struct {
	mu    sync.Mutex
	txs   map[string]uint32
	calls map[string]int
	err   error
}

func (f *fakeFetcher) GetTransaction(_ context.Context, txid string) (*explorer.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[txid]++
	if f.err != nil {
		return nil, f.err
	}
	return &explorer.Transaction{TxID: txid, LockTime: f.txs[txid]}, nil
}

func TestCalculator_FillsLocktimesOncePerTx(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{
		txs:   map[string]uint32{"a": lockAgo(day), "b": lockAgo(2 * day)},
		calls: map[string]int{},
	}
	c, err := rewards.NewCalculator(f, rewards.Options{ServiceFeeBPS: 250})
	require.NoError(t, err)

	utxos := []explorer.UTXO{
		{TxID: "a", Vout: 0, Satoshis: twentyKM, Height: 3_000_000},
		{TxID: "a", Vout: 1, Satoshis: twentyKM, Height: 3_000_000},
		{TxID: "b", Vout: 0, Satoshis: 5_000, Height: 3_000_000},
		{TxID: "c", Vout: 0, Satoshis: twentyKM, Height: 3_000_000, Locktime: lockAgo(day)},
	}

	s, err := c.Calculate(context.Background(), utxos, tip)
	require.NoError(t, err)

	assert.Equal(t, 1, f.calls["a"])
	assert.Equal(t, 1, f.calls["b"])
	assert.Equal(t, 0, f.calls["c"])

	one := uint64(190 * 1381)
	assert.Equal(t, 3*one, s.Rewards)
	assert.Equal(t, rewards.ServiceFee(3*one, 250), s.ServiceFee)
	assert.Equal(t, s.Rewards-s.ServiceFee, s.Claimable)
	require.Len(t, s.Items, 4)
	assert.Equal(t, "a:1", s.Items[1].Outpoint)
	assert.Equal(t, uint64(0), s.Items[2].Rewards)
	assert.Equal(t, lockAgo(2*day), s.UTXOs[2].Locktime)

	// Input slice is not modified.
	assert.Equal(t, uint32(0), utxos[0].Locktime)
}

func TestCalculator_FetchError(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{calls: map[string]int{}, err: errors.New("explorer down")}
	c, err := rewards.NewCalculator(f, rewards.Options{})
	require.NoError(t, err)

	_, err = c.Calculate(context.Background(), []explorer.UTXO{{TxID: "a", Satoshis: twentyKM}}, tip)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explorer down")
}

func TestCalculator_Empty(t *testing.T) {
	t.Parallel()
	c, err := rewards.NewCalculator(nil, rewards.Options{})
	require.NoError(t, err)

	s, err := c.Calculate(context.Background(), nil, tip)
	require.NoError(t, err)
	assert.Zero(t, s.Rewards)
	assert.Zero(t, s.Claimable)
}

func TestNewCalculator_RejectsFeeAboveRewards(t *testing.T) {
	t.Parallel()
	_, err := rewards.NewCalculator(nil, rewards.Options{ServiceFeeBPS: 10_001})
	require.ErrorIs(t, err, hwerr.ErrConfigInvalid)
}
