// Package rewards computes the Komodo active user reward accrued by
// unspent outputs, and the optional service fee taken from it.
package rewards

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/explorer"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Consensus constants of the Komodo reward.
const (
	// LocktimeThreshold separates block-height locktimes from timestamps.
	// Only timestamp locktimes accrue.
	LocktimeThreshold = 500_000_000

	// EndOfEra is the height after which no reward accrues.
	EndOfEra = 7_777_777

	// CapChangeHeight is where the accrual cap dropped from a year to 31 days.
	CapChangeHeight = 1_000_000

	// MinSatoshis is the smallest output that accrues (10 KMD).
	MinSatoshis = 10 * chain.SatoshisPerCoin

	// MinMinutes is the minimum age of an output before it accrues.
	MinMinutes = 60

	// rewardDivisor yields 5% APR per minute: 365*24*60*100/5.
	rewardDivisor = 10_512_000

	minutesPerDay = 24 * 60
	maxBPS        = 10_000

	defaultConcurrency = 4
)

// ForUTXO returns the reward accrued by one output at tipTime.
func ForUTXO(satoshis uint64, locktime uint32, height, tipTime int64) uint64 {
	if locktime < LocktimeThreshold || height <= 0 || height >= EndOfEra || satoshis < MinSatoshis {
		return 0
	}
	if tipTime <= int64(locktime) {
		return 0
	}

	minutes := (tipTime - int64(locktime)) / 60
	if minutes < MinMinutes {
		return 0
	}

	limit := int64(365 * minutesPerDay)
	if height >= CapChangeHeight {
		limit = 31 * minutesPerDay
	}
	if minutes > limit {
		minutes = limit
	}
	minutes -= MinMinutes - 1

	return (satoshis / rewardDivisor) * uint64(minutes) //nolint:gosec // G115: minutes is positive
}

// ServiceFee returns bps basis points of rewards, rounded down.
func ServiceFee(rewards uint64, bps uint32) uint64 {
	if bps == 0 || rewards == 0 {
		return 0
	}
	return rewards/maxBPS*uint64(bps) + rewards%maxBPS*uint64(bps)/maxBPS
}

// TxFetcher loads transactions to learn output locktimes.
type TxFetcher interface {
	GetTransaction(ctx context.Context, txid string) (*explorer.Transaction, error)
}

// Item is the reward of one output.
type Item struct {
	Outpoint string `json:"outpoint"`
	Satoshis uint64 `json:"satoshis"`
	Locktime uint32 `json:"locktime"`
	Height   int64  `json:"height"`
	Rewards  uint64 `json:"rewards"`
}

// Summary totals the reward of a set of outputs.
type Summary struct {
	// UTXOs are the inputs with Locktime filled in.
	UTXOs      []explorer.UTXO `json:"utxos"`
	Items      []Item          `json:"items"`
	Rewards    uint64          `json:"rewards"`
	ServiceFee uint64          `json:"service_fee"`
	Claimable  uint64          `json:"claimable"`
}

// Options configures a Calculator.
type Options struct {
	// ServiceFeeBPS is the fee in basis points of the reward.
	ServiceFeeBPS uint32

	// MaxConcurrent bounds parallel transaction lookups.
	MaxConcurrent int
}

// Calculator computes rewards, fetching locktimes it does not know yet.
type Calculator struct {
	fetcher TxFetcher
	opts    Options
}

// NewCalculator creates a calculator.
func NewCalculator(fetcher TxFetcher, opts Options) (*Calculator, error) {
	if opts.ServiceFeeBPS > maxBPS {
		return nil, hwerr.WithDetails(hwerr.ErrConfigInvalid, map[string]string{
			"claim.service_fee_bps": fmt.Sprintf("%d exceeds %d", opts.ServiceFeeBPS, maxBPS),
		})
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultConcurrency
	}
	return &Calculator{fetcher: fetcher, opts: opts}, nil
}

// ServiceFeeBPS returns the configured fee rate.
func (c *Calculator) ServiceFeeBPS() uint32 {
	return c.opts.ServiceFeeBPS
}

// Calculate returns the reward of utxos at tipTime.
func (c *Calculator) Calculate(ctx context.Context, utxos []explorer.UTXO, tipTime int64) (*Summary, error) {
	filled, err := c.fillLocktimes(ctx, utxos)
	if err != nil {
		return nil, err
	}

	s := &Summary{UTXOs: filled, Items: make([]Item, 0, len(filled))}
	for _, u := range filled {
		r := ForUTXO(u.Satoshis, u.Locktime, u.Height, tipTime)
		s.Items = append(s.Items, Item{
			Outpoint: u.Outpoint(),
			Satoshis: u.Satoshis,
			Locktime: u.Locktime,
			Height:   u.Height,
			Rewards:  r,
		})
		s.Rewards += r
	}
	s.ServiceFee = ServiceFee(s.Rewards, c.opts.ServiceFeeBPS)
	s.Claimable = s.Rewards - s.ServiceFee
	return s, nil
}

func (c *Calculator) fillLocktimes(ctx context.Context, utxos []explorer.UTXO) ([]explorer.UTXO, error) {
	out := make([]explorer.UTXO, len(utxos))
	copy(out, utxos)

	missing := make(map[string][]int)
	for i, u := range out {
		if u.Locktime == 0 {
			missing[u.TxID] = append(missing[u.TxID], i)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: no transaction source for locktimes", hwerr.ErrInvalidInput)
	}

	locktimes := make(map[string]uint32, len(missing))
	results := make(chan struct {
		txid     string
		locktime uint32
	}, len(missing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.MaxConcurrent)
	for txid := range missing {
		g.Go(func() error {
			tx, err := c.fetcher.GetTransaction(gctx, txid)
			if err != nil {
				return fmt.Errorf("fetching locktime of %s: %w", txid, err)
			}
			results <- struct {
				txid     string
				locktime uint32
			}{txid, tx.LockTime}
			return nil
		})
	}
	err := g.Wait()
	close(results)
	if err != nil {
		return nil, err
	}
	for r := range results {
		locktimes[r.txid] = r.locktime
	}

	for txid, idxs := range missing {
		for _, i := range idxs {
			out[i].Locktime = locktimes[txid]
		}
	}
	return out, nil
}
