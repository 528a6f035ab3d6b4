package discovery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/device/devicetest"
	"github.com/mrz1836/hwclaim/internal/discovery"
	"github.com/mrz1836/hwclaim/internal/explorer"
	"github.com/mrz1836/hwclaim/internal/explorer/explorertest"
	"github.com/mrz1836/hwclaim/internal/metrics"
	"github.com/mrz1836/hwclaim/internal/rewards"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

const oneKMD = chain.SatoshisPerCoin

type fixture struct {
	srv    *explorertest.Server
	api    *explorer.Client
	dev    *devicetest.Device
	keys   *devicetest.Keys
	opts   *discovery.Options
	calc   *rewards.Calculator
	events []discovery.ProgressUpdate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{srv: explorertest.New(t), dev: devicetest.New(device.Ledger)}
	f.keys = f.dev.Keys()
	f.api = explorer.NewClient(explorer.Options{
		Name:            "test",
		BaseURL:         f.srv.URL,
		Metrics:         metrics.New(),
		BreakerFailures: 10_000,
	})

	calc, err := rewards.NewCalculator(f.api, rewards.Options{})
	require.NoError(t, err)
	f.calc = calc

	f.opts = discovery.DefaultOptions(device.Ledger)
	f.opts.Retry = chain.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	f.opts.Metrics = metrics.New()
	f.opts.ProgressCallback = func(u discovery.ProgressUpdate) { f.events = append(f.events, u) }
	return f
}

func (f *fixture) engine(t *testing.T) *discovery.Engine {
	t.Helper()
	e, err := discovery.NewEngine(f.dev, f.api, f.calc, f.opts)
	require.NoError(t, err)
	return e
}

func lockDayAgo() uint32 {
	return uint32(explorertest.DefaultTipTime - 24*3600) //nolint:gosec // fits
}

func TestRun_BalanceIsSumOfUTXOs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.srv.Fund(f.keys.Address(0, 0, 0), explorertest.TxID(1), 20*oneKMD, lockDayAgo(), 3_000_000)
	f.srv.Fund(f.keys.Address(0, 0, 5), explorertest.TxID(2), oneKMD, lockDayAgo(), 3_000_000)
	f.srv.Fund(f.keys.Address(0, 1, 2), explorertest.TxID(3), 3*oneKMD, lockDayAgo(), 3_000_000)
	f.srv.Fund(f.keys.Address(0, 1, 2), explorertest.TxID(4), 2*oneKMD, lockDayAgo(), 3_000_000)

	e := f.engine(t)
	assert.Equal(t, discovery.StateIdle, e.State())

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, discovery.StateComplete, e.State())

	require.Len(t, res.Accounts, 1)
	acct := res.Accounts[0]

	var sum uint64
	for _, u := range acct.UTXOs {
		sum += u.Satoshis
	}
	assert.Equal(t, sum, acct.Balance)
	assert.Equal(t, 26*oneKMD, acct.Balance)
	assert.Len(t, acct.UTXOs, 4)
	assert.Len(t, acct.Addresses, 3)
	assert.Len(t, acct.History, 4)
	assert.Equal(t, uint32(6), acct.NextReceiveIndex)
	assert.Equal(t, uint32(3), acct.NextChangeIndex)
	assert.False(t, acct.Incomplete)
	assert.Equal(t, f.keys.AccountXpub(0), acct.Xpub)

	assert.Equal(t, explorertest.DefaultTipTime, res.TipTime)
	assert.Equal(t, uint64(190*1381), acct.Rewards)
	assert.Equal(t, acct.Rewards, acct.ClaimableAmount)

	// Account 1 was scanned and found empty; account 2 never was.
	assert.Equal(t, []string{chain.AccountPath(0), chain.AccountPath(1)}, f.dev.Derivations())

	require.NotEmpty(t, f.events)
	assert.Equal(t, "done", f.events[len(f.events)-1].Phase)
	assert.Equal(t, 26*oneKMD, f.events[len(f.events)-1].BalanceFound)
}

func TestRun_AccountGapNeverProbesAccountN(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.opts.AccountGap = 20
	f.opts.AddressGap = 2

	res, err := f.engine(t).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Accounts)

	derived := f.dev.Derivations()
	require.Len(t, derived, 20)
	assert.Equal(t, chain.AccountPath(19), derived[19])
	assert.NotContains(t, derived, chain.AccountPath(20))
}

func TestRun_UsedAccountResetsGap(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.opts.AccountGap = 2
	f.opts.AddressGap = 2

	// Spent address: history but no UTXOs still counts as used.
	f.srv.AddTransaction(explorer.Transaction{
		TxID: explorertest.TxID(9),
		Vin:  []explorer.TxInput{{Address: f.keys.Address(1, 0, 1), ValueSat: oneKMD}},
		Vout: []explorer.TxOutput{explorertest.PayTo("RSomeoneElse", oneKMD-10_000, 0)},
		Time: explorertest.DefaultTipTime - 60,
	})

	res, err := f.engine(t).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Accounts, 1)
	acct := res.Accounts[0]
	assert.Equal(t, uint32(1), acct.Index)
	assert.Zero(t, acct.Balance)
	require.Len(t, acct.History, 1)
	assert.Equal(t, discovery.DirectionSent, acct.History[0].Direction)
	assert.Equal(t, oneKMD, acct.History[0].Amount)

	assert.Equal(t, []string{
		chain.AccountPath(0), chain.AccountPath(1), chain.AccountPath(2), chain.AccountPath(3),
	}, f.dev.Derivations())
}

func TestRun_PartialFailureIsolatedToAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.srv.Fund(f.keys.Address(0, 0, 0), explorertest.TxID(1), 5*oneKMD, lockDayAgo(), 3_000_000)
	for i := uint32(0); i < 3; i++ {
		f.srv.Fund(f.keys.Address(1, 0, i), explorertest.TxID(10+int(i)), oneKMD, lockDayAgo(), 3_000_000)
	}
	failing := f.keys.Address(1, 0, 3)
	f.srv.FailAddress(failing)

	e := f.engine(t)
	res, err := e.Run(context.Background())
	require.ErrorIs(t, err, hwerr.ErrDiscoveryPartial)
	require.NotNil(t, res)
	assert.Equal(t, discovery.StateComplete, e.State())

	require.Len(t, res.Accounts, 2)
	assert.False(t, res.Accounts[0].Incomplete)
	assert.Equal(t, 5*oneKMD, res.Accounts[0].Balance)

	acct := res.Accounts[1]
	assert.True(t, acct.Incomplete)
	assert.Equal(t, []string{failing}, acct.FailedAddresses)
	assert.Equal(t, 3*oneKMD, acct.Balance)
	assert.Equal(t, []uint32{1}, res.Incomplete)

	// Retried before giving up.
	assert.Equal(t, 2, f.srv.Queried(failing))
}

func TestRun_FailedAccountDoesNotEndScan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.opts.AccountGap = 1

	for acct := uint32(0); acct < 3; acct++ {
		f.srv.Fund(f.keys.Address(acct, 0, 0), explorertest.TxID(20+int(acct)), oneKMD, lockDayAgo(), 3_000_000)
	}
	f.srv.FailAddress(f.keys.Address(1, 0, 0))

	res, err := f.engine(t).Run(context.Background())
	require.ErrorIs(t, err, hwerr.ErrDiscoveryPartial)
	require.NotNil(t, res)

	indices := make([]uint32, 0, len(res.Accounts))
	for _, a := range res.Accounts {
		indices = append(indices, a.Index)
	}
	assert.Equal(t, []uint32{0, 1, 2}, indices)
	assert.Equal(t, []uint32{1}, res.Incomplete)
	assert.Equal(t, oneKMD, res.Accounts[2].Balance)
	assert.Contains(t, f.dev.Derivations(), chain.AccountPath(3))
}

func TestRun_NextIndexSkipsFailedAddresses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		funded   []uint32
		failing  uint32
		wantNext uint32
	}{
		{"failure after last used", []uint32{0, 1, 2}, 3, 4},
		{"failure before last used", []uint32{0, 4}, 2, 5},
		{"failure with nothing used", nil, 1, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.srv.Fund(f.keys.Address(0, 1, 0), explorertest.TxID(1), oneKMD, lockDayAgo(), 3_000_000)
			for i, idx := range tc.funded {
				f.srv.Fund(f.keys.Address(0, 0, idx), explorertest.TxID(10+i), oneKMD, lockDayAgo(), 3_000_000)
			}
			failing := f.keys.Address(0, 0, tc.failing)
			f.srv.FailAddress(failing)

			res, err := f.engine(t).Run(context.Background())
			require.ErrorIs(t, err, hwerr.ErrDiscoveryPartial)
			require.NotEmpty(t, res.Accounts)

			acct := res.Accounts[0]
			assert.True(t, acct.Incomplete)
			assert.Equal(t, []string{failing}, acct.FailedAddresses)
			assert.Equal(t, tc.wantNext, acct.NextReceiveIndex)
			assert.Equal(t, uint32(1), acct.NextChangeIndex)
		})
	}
}

func TestRun_RewardsFailureMarksAccountIncomplete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.srv.Fund(f.keys.Address(0, 0, 0), explorertest.TxID(1), 20*oneKMD, lockDayAgo(), 3_000_000)
	// No transaction behind this output, so its locktime lookup fails.
	f.srv.AddUTXO(explorer.UTXO{
		TxID:          explorertest.TxID(2),
		Satoshis:      20 * oneKMD,
		Address:       f.keys.Address(1, 0, 0),
		Confirmations: 10,
		Height:        3_000_000,
	})

	res, err := f.engine(t).Run(context.Background())
	require.ErrorIs(t, err, hwerr.ErrDiscoveryPartial)
	require.Len(t, res.Accounts, 2)

	assert.False(t, res.Accounts[0].Incomplete)
	assert.Positive(t, res.Accounts[0].Rewards)

	broken := res.Accounts[1]
	assert.True(t, broken.Incomplete)
	assert.Empty(t, broken.FailedAddresses)
	assert.Zero(t, broken.Rewards)
	assert.Zero(t, broken.ClaimableAmount)
	assert.Equal(t, 20*oneKMD, broken.Balance)
	assert.Equal(t, []uint32{1}, res.Incomplete)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "account 1")
}

func TestRun_AllQueriesFail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.opts.AddressGap = 3
	for change := uint32(0); change < 2; change++ {
		for i := uint32(0); i < 3; i++ {
			f.srv.FailAddress(f.keys.Address(0, change, i))
		}
	}

	e := f.engine(t)
	res, err := e.Run(context.Background())
	require.ErrorIs(t, err, hwerr.ErrDiscoveryFailed)
	assert.Nil(t, res)
	assert.Equal(t, discovery.StateFailed, e.State())
}

func TestRun_DeviceFailureAborts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.dev.FailDerive(chain.AccountPath(0), hwerr.ErrDeviceNotConnected)

	e := f.engine(t)
	_, err := e.Run(context.Background())
	require.ErrorIs(t, err, hwerr.ErrDeviceNotConnected)
	assert.Equal(t, discovery.StateFailed, e.State())
	assert.Zero(t, f.srv.Hits("utxo"))
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := f.engine(t)
	_, err := e.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, discovery.StateFailed, e.State())
}

type noTip struct{ discovery.Explorer }

func (noTip) GetTipTime(context.Context) (int64, error) {
	return 0, errors.New("blocks endpoint down")
}

func TestRun_TipFailureIsPartial(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.srv.Fund(f.keys.Address(0, 0, 0), explorertest.TxID(1), 20*oneKMD, lockDayAgo(), 3_000_000)

	e, err := discovery.NewEngine(f.dev, noTip{f.api}, f.calc, f.opts)
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.ErrorIs(t, err, hwerr.ErrDiscoveryPartial)
	require.Len(t, res.Accounts, 1)
	assert.Zero(t, res.TipTime)
	assert.Zero(t, res.Accounts[0].Rewards)
	assert.Equal(t, 20*oneKMD, res.Accounts[0].Balance)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "blocks endpoint down")
}

func TestNewEngine_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := discovery.NewEngine(f.dev, f.api, nil, nil)
	require.ErrorIs(t, err, hwerr.ErrInvalidInput)

	_, err = discovery.NewEngine(nil, f.api, nil, f.opts)
	require.ErrorIs(t, err, hwerr.ErrInvalidInput)

	tests := []struct {
		name string
		mod  func(o *discovery.Options)
		code string
	}{
		{"zero account gap", func(o *discovery.Options) { o.AccountGap = 0 }, discovery.ErrInvalidGapLimit.Code},
		{"negative address gap", func(o *discovery.Options) { o.AddressGap = -1 }, discovery.ErrInvalidGapLimit.Code},
		{"zero concurrency", func(o *discovery.Options) { o.MaxConcurrent = 0 }, discovery.ErrInvalidMaxConcurrent.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := *discovery.DefaultOptions(device.Trezor)
			tt.mod(&opts)
			err := opts.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, hwerr.Code(err))
		})
	}
}

func TestValidate_Invariants(t *testing.T) {
	t.Parallel()
	utxos := []explorer.UTXO{{TxID: "a", Satoshis: 7}}

	tests := []struct {
		name     string
		accounts []discovery.Account
		wantErr  bool
	}{
		{"ok", []discovery.Account{{Index: 0, UTXOs: utxos, Balance: 7, Rewards: 5, ServiceFee: 1, ClaimableAmount: 4}}, false},
		{"balance mismatch", []discovery.Account{{Index: 0, UTXOs: utxos, Balance: 8}}, true},
		{"duplicate index", []discovery.Account{{Index: 2}, {Index: 2}}, true},
		{"fee above rewards", []discovery.Account{{Index: 0, Rewards: 1, ServiceFee: 2}}, true},
		{"claimable mismatch", []discovery.Account{{Index: 0, Rewards: 5, ClaimableAmount: 4}}, true},
		{"out of order", []discovery.Account{{Index: 3}, {Index: 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := discovery.Validate(&discovery.Result{Accounts: tt.accounts})
			if tt.wantErr {
				require.ErrorIs(t, err, hwerr.ErrInvariantViolation)
				assert.False(t, hwerr.IsRecoverable(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAccount_Helpers(t *testing.T) {
	t.Parallel()
	a := discovery.Account{}
	for i := uint32(0); i < 12; i++ {
		a.Addresses = append(a.Addresses, discovery.AddressInfo{Address: explorertest.TxID(int(i)), Index: i, Used: true})
	}
	assert.Len(t, a.ExposedAddresses(), discovery.ExposedAddressCount)
	assert.True(t, a.HasAddress(explorertest.TxID(11)))
	assert.False(t, a.HasAddress("nope"))
	a.FailedAddresses = []string{"RUnscanned"}
	assert.True(t, a.HasAddress("RUnscanned"))
	assert.True(t, a.Used())

	a.Rewards, a.ServiceFee, a.ClaimableAmount = 1, 3, 0
	assert.Zero(t, a.DisplayClaimable())
}
