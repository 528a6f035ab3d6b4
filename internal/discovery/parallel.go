package discovery

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/explorer"
	"github.com/mrz1836/hwclaim/internal/wallet"
)

// addrQuery is the outcome of checking one address.
type addrQuery struct {
	utxos []explorer.UTXO
	txs   []explorer.Transaction
	err   error
}

func (q *addrQuery) used() bool {
	return len(q.utxos) > 0 || len(q.txs) > 0
}

// queryWindow checks every address concurrently, at most MaxConcurrent at
// a time. Per-address failures are returned in the slice; only caller
// cancellation fails the whole window.
func (e *Engine) queryWindow(ctx context.Context, addrs []*wallet.Address) ([]addrQuery, error) {
	out := make([]addrQuery, len(addrs))

	var g errgroup.Group
	g.SetLimit(e.opts.MaxConcurrent)
	for i, a := range addrs {
		g.Go(func() error {
			out[i] = e.queryAddress(ctx, a.Address)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if isCancellation(ctx, out[i].err) {
			return nil, out[i].err
		}
	}
	return out, nil
}

// queryAddress loads UTXOs and history, each with retry.
func (e *Engine) queryAddress(ctx context.Context, address string) addrQuery {
	var q addrQuery

	q.utxos, q.err = chain.RetryWithConfig(ctx, e.opts.Retry, func() ([]explorer.UTXO, error) {
		return e.explorer.GetUTXOs(ctx, address)
	})
	if q.err == nil {
		q.txs, q.err = chain.RetryWithConfig(ctx, e.opts.Retry, func() ([]explorer.Transaction, error) {
			return e.explorer.GetHistory(ctx, address)
		})
	}

	e.metrics.RecordAddressQuery(q.err)
	if q.err != nil {
		return addrQuery{err: q.err}
	}
	return q
}
