package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/explorer"
	"github.com/mrz1836/hwclaim/internal/metrics"
	"github.com/mrz1836/hwclaim/internal/wallet"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Account scan results recorded in metrics.
const (
	resultUsed       = "used"
	resultEmpty      = "empty"
	resultIncomplete = "incomplete"
)

// Engine runs account discovery. One Engine serves one device session.
type Engine struct {
	keys     KeySource
	explorer Explorer
	rewards  RewardsCalculator
	opts     Options
	metrics  *metrics.Metrics
	logger   Logger

	mu    sync.Mutex
	state State
}

// NewEngine creates a discovery engine. rewards may be nil, in which case
// accounts report zero rewards.
func NewEngine(keys KeySource, api Explorer, calc RewardsCalculator, opts *Options) (*Engine, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: nil options", hwerr.ErrInvalidInput)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if keys == nil || api == nil {
		return nil, fmt.Errorf("%w: key source and explorer are required", hwerr.ErrInvalidInput)
	}

	e := &Engine{
		keys:     keys,
		explorer: api,
		rewards:  calc,
		opts:     *opts,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		state:    StateIdle,
	}
	if e.opts.MaxAccounts <= 0 {
		e.opts.MaxAccounts = DefaultMaxAccounts
	}
	if e.metrics == nil {
		e.metrics = metrics.Global
	}
	if e.logger == nil {
		e.logger = nopLogger{}
	}
	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateScanning {
		return ErrAlreadyScanning
	}
	e.state = StateScanning
	return nil
}

func (e *Engine) finish(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.metrics.RecordDiscovery(string(s))
}

type tipResult struct {
	time int64
	err  error
}

// Run scans accounts 0, 1, 2, ... until AccountGap consecutive accounts
// are unused. A run with failed address queries still completes; it
// returns the result together with ErrDiscoveryPartial. If every query
// failed the run ends Failed with ErrDiscoveryFailed.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	start := time.Now()

	tipCh := make(chan tipResult, 1)
	go func() {
		t, err := chain.RetryWithConfig(ctx, e.opts.Retry, func() (int64, error) {
			return e.explorer.GetTipTime(ctx)
		})
		tipCh <- tipResult{time: t, err: err}
	}()

	result := &Result{}
	var stats queryStats
	emptyRun := 0

	for idx := 0; emptyRun < e.opts.AccountGap && idx < e.opts.MaxAccounts; idx++ {
		account := uint32(idx) //nolint:gosec // G115: bounded by MaxAccounts

		e.report(ProgressUpdate{
			Phase:         "account",
			Account:       account,
			AccountsFound: len(result.Accounts),
			BalanceFound:  result.TotalBalance(),
			Message:       fmt.Sprintf("Scanning account %d...", account),
		})

		acct, err := e.scanAccount(ctx, account, &stats)
		if err != nil {
			<-tipCh
			e.finish(StateFailed)
			return nil, err
		}
		result.Scanned = stats.total()

		switch {
		case acct.Incomplete:
			e.metrics.RecordAccount(resultIncomplete)
		case acct.Used():
			e.metrics.RecordAccount(resultUsed)
		default:
			e.metrics.RecordAccount(resultEmpty)
		}

		// An account whose queries failed may still hold funds, so it
		// never counts toward the gap.
		switch {
		case acct.Used():
			emptyRun = 0
		case !acct.Incomplete:
			emptyRun++
		}
		if acct.Used() || acct.Incomplete {
			result.Accounts = append(result.Accounts, *acct)
		}
		if acct.Incomplete {
			result.Incomplete = append(result.Incomplete, account)
		}
		if stats.failed() == stats.total() {
			// Nothing has answered yet; more accounts cannot help.
			break
		}
	}

	tip := <-tipCh

	if stats.total() > 0 && stats.failed() == stats.total() {
		e.finish(StateFailed)
		return nil, hwerr.WithDetails(hwerr.ErrDiscoveryFailed, map[string]string{
			"failed_queries": fmt.Sprintf("%d", stats.failed()),
		})
	}

	if tip.err != nil {
		if ctx.Err() != nil {
			e.finish(StateFailed)
			return nil, ctx.Err()
		}
		e.logger.Error("tip time lookup failed: %v", tip.err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("tip time unavailable, rewards not computed: %v", tip.err))
	} else {
		result.TipTime = tip.time
		e.fillRewards(ctx, result)
	}

	if err := Validate(result); err != nil {
		e.finish(StateFailed)
		return nil, err
	}

	result.Duration = time.Since(start)
	e.finish(StateComplete)
	e.report(ProgressUpdate{
		Phase:            "done",
		AddressesScanned: result.Scanned,
		AccountsFound:    len(result.Accounts),
		BalanceFound:     result.TotalBalance(),
	})

	if result.Partial() {
		return result, hwerr.WithDetails(hwerr.ErrDiscoveryPartial, partialDetails(result))
	}
	return result, nil
}

// scanAccount derives the account xpub and walks both chains.
func (e *Engine) scanAccount(ctx context.Context, account uint32, stats *queryStats) (*Account, error) {
	xpub, err := e.keys.DerivePublicKey(ctx, chain.AccountPath(account))
	if err != nil {
		return nil, fmt.Errorf("deriving account %d: %w", account, err)
	}
	deriver, err := wallet.NewXpubDeriver(xpub, account)
	if err != nil {
		return nil, hwerr.Wrap(hwerr.ErrDevice, "account %d xpub: %v", account, err)
	}

	acct := &Account{Index: account, Xpub: xpub}
	var txs []explorer.Transaction

	for _, change := range []uint32{wallet.ExternalChain, wallet.InternalChain} {
		res, err := e.scanChain(ctx, deriver, change, stats)
		if err != nil {
			return nil, err
		}
		acct.Addresses = append(acct.Addresses, res.used...)
		acct.UTXOs = append(acct.UTXOs, res.utxos...)
		acct.FailedAddresses = append(acct.FailedAddresses, res.failed...)
		txs = append(txs, res.txs...)
		if change == wallet.ExternalChain {
			acct.NextReceiveIndex = res.next
		} else {
			acct.NextChangeIndex = res.next
		}
	}

	for _, u := range acct.UTXOs {
		acct.Balance += u.Satoshis
	}
	acct.History = buildHistory(txs, acct.Addresses)
	acct.Incomplete = len(acct.FailedAddresses) > 0

	e.logger.Debug("account %d: %d addresses used, %d utxos, balance %s, incomplete=%t",
		account, len(acct.Addresses), len(acct.UTXOs), chain.FormatKMD(acct.Balance), acct.Incomplete)
	return acct, nil
}

type chainResult struct {
	used   []AddressInfo
	utxos  []explorer.UTXO
	txs    []explorer.Transaction
	failed []string
	next   uint32
}

// scanChain queries windows of AddressGap addresses until AddressGap
// consecutive unused addresses follow the last used one.
func (e *Engine) scanChain(ctx context.Context, d *wallet.XpubDeriver, change uint32, stats *queryStats) (*chainResult, error) {
	res := &chainResult{}
	gap := uint32(e.opts.AddressGap) //nolint:gosec // G115: validated positive
	lastUsed := int64(-1)
	lastFailed := int64(-1)

	for start := uint32(0); int64(start)-(lastUsed+1) < int64(gap); start += gap {
		addrs, err := d.DeriveRange(change, start, gap)
		if err != nil {
			return nil, fmt.Errorf("deriving addresses %d..%d: %w", start, start+gap-1, err)
		}

		found, err := e.queryWindow(ctx, addrs)
		if err != nil {
			return nil, err
		}

		for i, q := range found {
			stats.add(q.err)
			if q.err != nil {
				res.failed = append(res.failed, addrs[i].Address)
				lastFailed = int64(addrs[i].Index)
				e.logger.Error("query %s failed: %v", addrs[i].Address, q.err)
				continue
			}
			if !q.used() {
				continue
			}
			lastUsed = int64(addrs[i].Index)

			var bal uint64
			for _, u := range q.utxos {
				bal += u.Satoshis
			}
			res.used = append(res.used, AddressInfo{
				Address:  addrs[i].Address,
				Path:     addrs[i].Path,
				IsChange: addrs[i].IsChange(),
				Index:    addrs[i].Index,
				Used:     true,
				Balance:  bal,
			})
			res.utxos = append(res.utxos, q.utxos...)
			res.txs = append(res.txs, q.txs...)
		}

		e.report(ProgressUpdate{
			Phase:            "addresses",
			Account:          d.Account(),
			AddressesScanned: stats.total(),
			Message:          fmt.Sprintf("Checked addresses %d..%d on chain %d", start, start+gap-1, change),
		})
	}

	// A failed address may be used, so the next fresh index skips it too.
	res.next = uint32(max(lastUsed, lastFailed) + 1) //nolint:gosec // G115: index fits
	return res, nil
}

// fillRewards computes rewards per account. A failure marks that account
// incomplete and leaves its rewards at zero.
func (e *Engine) fillRewards(ctx context.Context, result *Result) {
	if e.rewards == nil {
		return
	}
	e.report(ProgressUpdate{Phase: "rewards", AccountsFound: len(result.Accounts)})

	for i := range result.Accounts {
		acct := &result.Accounts[i]
		if len(acct.UTXOs) == 0 {
			continue
		}
		s, err := e.rewards.Calculate(ctx, acct.UTXOs, result.TipTime)
		if err != nil {
			e.logger.Error("rewards for account %d: %v", acct.Index, err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("account %d: rewards unavailable: %v", acct.Index, err))
			if !acct.Incomplete {
				acct.Incomplete = true
				result.Incomplete = append(result.Incomplete, acct.Index)
				sort.Slice(result.Incomplete, func(a, b int) bool { return result.Incomplete[a] < result.Incomplete[b] })
			}
			continue
		}
		acct.UTXOs = s.UTXOs
		acct.Rewards = s.Rewards
		acct.ServiceFee = s.ServiceFee
		acct.ClaimableAmount = s.Claimable
	}
}

func (e *Engine) report(update ProgressUpdate) {
	if e.opts.ProgressCallback != nil {
		e.opts.ProgressCallback(update)
	}
}

func partialDetails(r *Result) map[string]string {
	details := make(map[string]string)
	if len(r.Incomplete) > 0 {
		details["incomplete_accounts"] = fmt.Sprintf("%v", r.Incomplete)
	}
	if len(r.Warnings) > 0 {
		details["warnings"] = fmt.Sprintf("%d", len(r.Warnings))
	}
	return details
}

// Validate checks the invariants of a result: balances equal the sum of
// UTXOs, no account index repeats, and fees never exceed rewards.
func Validate(r *Result) error {
	seen := make(map[uint32]bool, len(r.Accounts))
	for i := range r.Accounts {
		a := &r.Accounts[i]
		if seen[a.Index] {
			return hwerr.Wrap(hwerr.ErrInvariantViolation, "duplicate account index %d", a.Index)
		}
		seen[a.Index] = true

		var sum uint64
		for _, u := range a.UTXOs {
			sum += u.Satoshis
		}
		if sum != a.Balance {
			return hwerr.Wrap(hwerr.ErrInvariantViolation,
				"account %d balance %d != utxo sum %d", a.Index, a.Balance, sum)
		}
		if a.ServiceFee > a.Rewards || a.ClaimableAmount != a.Rewards-a.ServiceFee {
			return hwerr.Wrap(hwerr.ErrInvariantViolation,
				"account %d claimable %d != rewards %d - fee %d", a.Index, a.ClaimableAmount, a.Rewards, a.ServiceFee)
		}
	}

	if !sort.SliceIsSorted(r.Accounts, func(i, j int) bool { return r.Accounts[i].Index < r.Accounts[j].Index }) {
		return hwerr.Wrap(hwerr.ErrInvariantViolation, "accounts out of order")
	}
	return nil
}

// queryStats counts per-address outcomes across a run.
type queryStats struct {
	mu    sync.Mutex
	count int
	fails int
}

func (s *queryStats) add(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if err != nil {
		s.fails++
	}
}

func (s *queryStats) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *queryStats) failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fails
}

// isCancellation reports whether err comes from the caller giving up.
func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
