// Package claim builds, signs and broadcasts the Komodo reward claim
// transaction of one account.
//
// A claim spends every UTXO of the account back to the owner: the principal
// to a fresh change address and the accrued rewards (minus the network fee
// and an optional service fee) to a fresh receive address. A claim is
// attempted at most once per account; the resulting ClaimState is terminal.
package claim

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/discovery"
	"github.com/mrz1836/hwclaim/internal/metrics"
	"github.com/mrz1836/hwclaim/internal/session"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Claim outcomes recorded in metrics.
const (
	OutcomeBroadcast = "broadcast"
	OutcomeDryRun    = "dry_run"
	OutcomeRejected  = "rejected"
	OutcomeRefused   = "refused"
	OutcomeFailed    = "failed"
)

// ReuseWarning is attached to results that pay rewards to an address the
// account already used.
const ReuseWarning = "rewards are sent to an address that is already public; " +
	"anyone watching it can link this claim to your other addresses"

// Signer signs an unsigned transaction. device.Device satisfies it.
type Signer interface {
	SignTransaction(ctx context.Context, tx *device.UnsignedTx) ([]byte, error)
}

// Explorer is the subset of the explorer API a claim needs.
type Explorer interface {
	GetRawTransaction(ctx context.Context, txid string) (string, error)
	Broadcast(ctx context.Context, rawHex string) (string, error)
}

// Logger is the logging interface used by the orchestrator.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Config configures an Orchestrator.
type Config struct {
	// TxFee is the network fee in satoshis. Zero means chain.DefaultTxFee.
	TxFee uint64

	// ServiceFeeAddress receives Account.ServiceFee when it is non-zero.
	ServiceFeeAddress string

	Metrics *metrics.Metrics
	Logger  Logger
}

// Options are the per-claim choices of the user.
type Options struct {
	// Address optionally selects one of the account's exposed addresses as
	// the reward destination. Requires AllowAddressReuse.
	Address           string
	AllowAddressReuse bool

	// DryRun builds the transaction and returns its unsigned hex without
	// contacting the device or the explorer.
	DryRun bool
}

// Result describes a claim attempt.
type Result struct {
	AttemptID     string             `json:"attempt_id"`
	Account       uint32             `json:"account"`
	DryRun        bool               `json:"dry_run"`
	TxID          string             `json:"txid,omitempty"`
	RawTx         string             `json:"raw_tx"`
	Destination   string             `json:"destination"`
	ChangeAddress string             `json:"change_address"`
	Reward        uint64             `json:"reward"`
	Principal     uint64             `json:"principal"`
	ServiceFee    uint64             `json:"service_fee"`
	Fee           uint64             `json:"fee"`
	LockTime      uint32             `json:"locktime"`
	Warnings      []string           `json:"warnings,omitempty"`
	State         session.ClaimState `json:"state"`

	// Updated is the account as it looks after a broadcast: spent UTXOs
	// removed, the new outputs added and the fresh addresses marked used.
	// It is nil for dry runs.
	Updated *discovery.Account `json:"-"`
}

// Orchestrator runs claims. It is safe for concurrent use; at most one
// claim per account runs at a time.
type Orchestrator struct {
	signer Signer
	api    Explorer
	cfg    Config
	now    func() time.Time

	mu       sync.Mutex
	inflight map[uint32]struct{}
}

// New creates an Orchestrator. signer may be nil when only dry runs are
// needed.
func New(signer Signer, api Explorer, cfg Config) (*Orchestrator, error) {
	if api == nil {
		return nil, fmt.Errorf("%w: explorer is required", hwerr.ErrInvalidInput)
	}
	if cfg.TxFee == 0 {
		cfg.TxFee = chain.DefaultTxFee
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	return &Orchestrator{
		signer:   signer,
		api:      api,
		cfg:      cfg,
		now:      time.Now,
		inflight: make(map[uint32]struct{}),
	}, nil
}

// TxFee returns the network fee used for claims.
func (o *Orchestrator) TxFee() uint64 {
	return o.cfg.TxFee
}

// Claim claims the rewards of acct. state is the account's current claim
// state; a claimed or incompletely scanned account is refused before
// anything else happens. On any failure the caller's state stays as it was.
func (o *Orchestrator) Claim(ctx context.Context, acct *discovery.Account, state session.ClaimState, tipTime int64, opts Options) (*Result, error) {
	if acct == nil {
		return nil, fmt.Errorf("%w: no account", hwerr.ErrInvalidInput)
	}
	if state.IsClaimed {
		o.cfg.Metrics.RecordClaim(OutcomeRefused)
		return nil, hwerr.WithDetails(hwerr.ErrAlreadyClaimed, map[string]string{
			"account": strconv.FormatUint(uint64(acct.Index), 10),
			"txid":    state.ClaimTxID,
		})
	}
	if acct.Incomplete {
		// Unscanned addresses may hold inputs or be the next fresh address.
		o.cfg.Metrics.RecordClaim(OutcomeRefused)
		return nil, hwerr.WithSuggestion(
			hwerr.WithDetails(hwerr.ErrDiscoveryPartial, map[string]string{
				"account":          strconv.FormatUint(uint64(acct.Index), 10),
				"failed_addresses": strconv.Itoa(len(acct.FailedAddresses)),
			}),
			"run 'hwclaim discover' again before claiming this account",
		)
	}

	release, err := o.begin(acct.Index)
	if err != nil {
		o.cfg.Metrics.RecordClaim(OutcomeRefused)
		return nil, err
	}
	defer release()

	if !opts.DryRun && o.signer == nil {
		o.record(hwerr.ErrVendorNotSelected)
		return nil, hwerr.ErrVendorNotSelected
	}

	attempt := uuid.NewString()
	log := o.cfg.Logger
	log.Debug("claim %s: account %d building transaction", attempt, acct.Index)

	plan, err := o.build(ctx, acct, tipTime, opts, !opts.DryRun)
	if err != nil {
		o.record(err)
		log.Error("claim %s: account %d: %v", attempt, acct.Index, err)
		return nil, err
	}

	result := &Result{
		AttemptID:     attempt,
		Account:       acct.Index,
		DryRun:        opts.DryRun,
		Destination:   plan.Destination,
		ChangeAddress: plan.Change.Address,
		Reward:        plan.Reward,
		Principal:     plan.Principal,
		ServiceFee:    plan.ServiceFee,
		Fee:           plan.Fee,
		LockTime:      plan.LockTime,
	}
	if plan.Reused {
		result.Warnings = append(result.Warnings, ReuseWarning)
	}

	if opts.DryRun {
		raw, hexErr := plan.Tx.Hex()
		if hexErr != nil {
			o.record(hexErr)
			return nil, hexErr
		}
		result.RawTx = raw
		o.cfg.Metrics.RecordClaim(OutcomeDryRun)
		log.Debug("claim %s: account %d dry run, %d inputs", attempt, acct.Index, len(plan.Tx.Inputs))
		return result, nil
	}

	log.Debug("claim %s: account %d waiting for device signature", attempt, acct.Index)
	signed, err := o.signer.SignTransaction(ctx, plan.Tx)
	if err != nil {
		o.record(err)
		log.Error("claim %s: account %d signing: %v", attempt, acct.Index, err)
		return nil, hwerr.Wrap(err, "signing claim for account %d", acct.Index)
	}
	result.RawTx = hex.EncodeToString(signed)

	txid, err := o.api.Broadcast(ctx, result.RawTx)
	if err != nil {
		o.record(err)
		log.Error("claim %s: account %d broadcast: %v", attempt, acct.Index, err)
		return nil, hwerr.Wrap(err, "broadcasting claim for account %d", acct.Index)
	}

	result.TxID = txid
	result.State = session.ClaimState{
		IsClaimed: true,
		ClaimTxID: txid,
		ClaimedAt: o.now().UTC(),
	}
	result.Updated = Reconcile(acct, plan, txid, o.now())
	o.cfg.Metrics.RecordClaim(OutcomeBroadcast)
	log.Debug("claim %s: account %d broadcast as %s", attempt, acct.Index, txid)
	return result, nil
}

// begin marks a claim for account as running.
func (o *Orchestrator) begin(account uint32) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.inflight[account]; busy {
		return nil, hwerr.WithDetails(hwerr.ErrClaimInProgress, map[string]string{
			"account": strconv.FormatUint(uint64(account), 10),
		})
	}
	o.inflight[account] = struct{}{}
	return func() {
		o.mu.Lock()
		delete(o.inflight, account)
		o.mu.Unlock()
	}, nil
}

func (o *Orchestrator) record(err error) {
	switch {
	case errors.Is(err, hwerr.ErrDeviceRejected):
		o.cfg.Metrics.RecordClaim(OutcomeRejected)
	case errors.Is(err, hwerr.ErrNothingToClaim), errors.Is(err, hwerr.ErrAddressReuse),
		errors.Is(err, hwerr.ErrInvalidInput), errors.Is(err, hwerr.ErrInvalidAddress):
		o.cfg.Metrics.RecordClaim(OutcomeRefused)
	default:
		o.cfg.Metrics.RecordClaim(OutcomeFailed)
	}
}
