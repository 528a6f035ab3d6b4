package claim

import (
	"context"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/discovery"
	"github.com/mrz1836/hwclaim/internal/wallet"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// ClaimSequence is the input sequence of a claim transaction. It is below
// the final value so the locktime is enforced.
const ClaimSequence uint32 = 0xfffffffe

// maxPrevTxFetch bounds concurrent raw transaction fetches.
const maxPrevTxFetch = 4

// Plan is a built, unsigned claim transaction plus the amounts it moves.
type Plan struct {
	Tx *device.UnsignedTx

	Destination   string
	DestinationAt *wallet.Address // nil when the caller chose an exposed address
	Change        *wallet.Address

	Reward     uint64 // paid to Destination
	Principal  uint64 // paid to Change
	ServiceFee uint64 // paid to the service fee address, 0 when waived
	Fee        uint64
	LockTime   uint32
	Reused     bool
}

// build assembles the unsigned transaction for acct. Raw previous
// transactions are fetched only when withPrevTx is set.
func (o *Orchestrator) build(ctx context.Context, acct *discovery.Account, tipTime int64, opts Options, withPrevTx bool) (*Plan, error) {
	if err := checkAccount(acct); err != nil {
		return nil, err
	}
	if tipTime <= 0 {
		return nil, hwerr.WithSuggestion(
			fmt.Errorf("%w: chain tip time is unknown", hwerr.ErrInvalidInput),
			"run 'hwclaim discover' to refresh the chain tip",
		)
	}
	if len(acct.UTXOs) == 0 || acct.ClaimableAmount <= o.cfg.TxFee {
		return nil, hwerr.WithDetails(hwerr.ErrNothingToClaim, map[string]string{
			"account":   strconv.FormatUint(uint64(acct.Index), 10),
			"claimable": chain.FormatKMD(acct.ClaimableAmount),
			"fee":       chain.FormatKMD(o.cfg.TxFee),
		})
	}

	deriver, err := wallet.NewXpubDeriver(acct.Xpub, acct.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: account %d xpub: %w", hwerr.ErrInvariantViolation, acct.Index, err)
	}

	plan := &Plan{
		Reward:     acct.ClaimableAmount - o.cfg.TxFee,
		Principal:  acct.Balance,
		ServiceFee: acct.ServiceFee,
		Fee:        o.cfg.TxFee,
		LockTime:   chain.ClaimLockTime(tipTime),
	}

	if err := o.chooseDestination(plan, acct, deriver, opts); err != nil {
		return nil, err
	}
	change, err := deriver.Derive(wallet.InternalChain, acct.NextChangeIndex)
	if err != nil {
		return nil, fmt.Errorf("deriving change address: %w", err)
	}
	if acct.HasAddress(change.Address) {
		return nil, fmt.Errorf("%w: change address %s already known", hwerr.ErrInvariantViolation, change.Address)
	}
	plan.Change = change

	// A service fee below dust cannot be paid out on its own and is waived.
	if plan.ServiceFee > 0 && plan.ServiceFee < chain.DustLimit {
		plan.Reward += plan.ServiceFee
		plan.ServiceFee = 0
	}
	if plan.ServiceFee > 0 && o.cfg.ServiceFeeAddress == "" {
		return nil, hwerr.WithSuggestion(
			fmt.Errorf("%w: service fee set but no service fee address", hwerr.ErrConfigInvalid),
			"set claim.service_fee_address or claim.service_fee_bps to 0",
		)
	}
	if plan.Reward < chain.DustLimit {
		return nil, hwerr.WithDetails(hwerr.ErrNothingToClaim, map[string]string{
			"account": strconv.FormatUint(uint64(acct.Index), 10),
			"reward":  chain.FormatKMD(plan.Reward),
		})
	}

	tx, err := o.assemble(plan, acct)
	if err != nil {
		return nil, err
	}
	if withPrevTx {
		if err := o.attachPrevTx(ctx, tx); err != nil {
			return nil, err
		}
	}
	plan.Tx = tx
	return plan, nil
}

func (o *Orchestrator) chooseDestination(plan *Plan, acct *discovery.Account, deriver *wallet.XpubDeriver, opts Options) error {
	if opts.Address == "" {
		fresh, err := deriver.Derive(wallet.ExternalChain, acct.NextReceiveIndex)
		if err != nil {
			return fmt.Errorf("deriving receive address: %w", err)
		}
		if acct.HasAddress(fresh.Address) {
			return fmt.Errorf("%w: fresh address %s already known", hwerr.ErrInvariantViolation, fresh.Address)
		}
		plan.Destination = fresh.Address
		plan.DestinationAt = fresh
		return nil
	}

	if err := wallet.ValidateAddress(opts.Address); err != nil {
		return err
	}
	exposed := false
	for _, a := range acct.ExposedAddresses() {
		if a.Address == opts.Address {
			exposed = true
			break
		}
	}
	if !exposed {
		return hwerr.WithSuggestion(
			fmt.Errorf("%w: %s is not one of the first %d addresses of account %d",
				hwerr.ErrInvalidInput, opts.Address, discovery.ExposedAddressCount, acct.Index),
			"list them with 'hwclaim accounts'",
		)
	}
	if !opts.AllowAddressReuse {
		return hwerr.WithDetails(hwerr.ErrAddressReuse, map[string]string{"address": opts.Address})
	}
	plan.Destination = opts.Address
	plan.Reused = true
	return nil
}

// assemble creates the wire transaction and the per-input signing metadata.
func (o *Orchestrator) assemble(plan *Plan, acct *discovery.Account) (*device.UnsignedTx, error) {
	paths := make(map[string]string, len(acct.Addresses))
	for _, a := range acct.Addresses {
		paths[a.Address] = a.Path
	}

	msg := wire.NewMsgTx(chain.SaplingVersion)
	msg.LockTime = plan.LockTime
	inputs := make([]device.InputRef, 0, len(acct.UTXOs))
	for _, u := range acct.UTXOs {
		path, ok := paths[u.Address]
		if !ok {
			return nil, fmt.Errorf("%w: utxo %s pays unknown address %s", hwerr.ErrInvariantViolation, u.Outpoint(), u.Address)
		}
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: utxo txid %q: %w", hwerr.ErrInvariantViolation, u.TxID, err)
		}
		in := wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil)
		in.Sequence = ClaimSequence
		msg.AddTxIn(in)
		inputs = append(inputs, device.InputRef{
			TxID:     u.TxID,
			Vout:     u.Vout,
			Satoshis: u.Satoshis,
			Address:  u.Address,
			Path:     path,
		})
	}

	var outputs []device.OutputRef
	addOut := func(addr string, sats uint64, path string) error {
		script, err := wallet.PayToAddrScript(addr)
		if err != nil {
			return err
		}
		msg.AddTxOut(wire.NewTxOut(int64(sats), script)) //nolint:gosec // G115: amounts are bounded by total supply
		outputs = append(outputs, device.OutputRef{Address: addr, Satoshis: sats, Path: path})
		return nil
	}

	if err := addOut(plan.Destination, plan.Reward, ""); err != nil {
		return nil, err
	}
	if err := addOut(plan.Change.Address, plan.Principal, plan.Change.Path); err != nil {
		return nil, err
	}
	if plan.ServiceFee > 0 {
		if err := addOut(o.cfg.ServiceFeeAddress, plan.ServiceFee, ""); err != nil {
			return nil, fmt.Errorf("%w: service fee address: %w", hwerr.ErrConfigInvalid, err)
		}
	}

	return &device.UnsignedTx{
		Tx:         msg,
		Inputs:     inputs,
		Outputs:    outputs,
		ChangePath: plan.Change.Path,
		LockTime:   plan.LockTime,
	}, nil
}

// attachPrevTx fetches the raw transaction behind every input. Ledger
// devices need them to verify input amounts.
func (o *Orchestrator) attachPrevTx(ctx context.Context, tx *device.UnsignedTx) error {
	raw := make(map[string]string)
	for _, in := range tx.Inputs {
		raw[in.TxID] = ""
	}
	txids := make([]string, 0, len(raw))
	for txid := range raw {
		txids = append(txids, txid)
	}

	results := make([]string, len(txids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPrevTxFetch)
	for i, txid := range txids {
		g.Go(func() error {
			hexTx, err := o.api.GetRawTransaction(gctx, txid)
			if err != nil {
				return fmt.Errorf("fetching previous transaction %s: %w", txid, err)
			}
			results[i] = hexTx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, txid := range txids {
		raw[txid] = results[i]
	}
	for i := range tx.Inputs {
		tx.Inputs[i].PrevTxHex = raw[tx.Inputs[i].TxID]
	}
	return nil
}

// checkAccount verifies the invariants the transaction amounts rely on.
func checkAccount(acct *discovery.Account) error {
	var sum uint64
	for _, u := range acct.UTXOs {
		sum += u.Satoshis
	}
	switch {
	case sum != acct.Balance:
		return fmt.Errorf("%w: account %d balance %d does not match utxo sum %d",
			hwerr.ErrInvariantViolation, acct.Index, acct.Balance, sum)
	case acct.ServiceFee > acct.Rewards, acct.ClaimableAmount != acct.Rewards-acct.ServiceFee:
		return fmt.Errorf("%w: account %d claimable %d is not rewards %d minus service fee %d",
			hwerr.ErrInvariantViolation, acct.Index, acct.ClaimableAmount, acct.Rewards, acct.ServiceFee)
	}
	return nil
}
