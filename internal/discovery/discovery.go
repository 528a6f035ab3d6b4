// Package discovery finds the funded HD accounts of a hardware wallet.
// Account xpubs come from the device; every address below them is derived
// locally and checked against an explorer.
package discovery

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/mrz1836/hwclaim/internal/chain"
	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/explorer"
	"github.com/mrz1836/hwclaim/internal/metrics"
	"github.com/mrz1836/hwclaim/internal/rewards"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Default scanning parameters.
const (
	// DefaultMaxConcurrent limits parallel explorer requests.
	DefaultMaxConcurrent = 8

	// DefaultMaxAccounts bounds the account loop regardless of the gap.
	DefaultMaxAccounts = 100

	// ExposedAddressCount is how many addresses a user may pick as a
	// claim destination.
	ExposedAddressCount = 10
)

// State is the lifecycle of an Engine.
type State string

// Engine states.
const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

// Errors specific to discovery.
var (
	ErrInvalidGapLimit = &hwerr.HWError{
		Code:     "INVALID_GAP_LIMIT",
		Message:  "gap limit must be positive",
		ExitCode: hwerr.ExitInput,
	}

	ErrInvalidMaxConcurrent = &hwerr.HWError{
		Code:     "INVALID_MAX_CONCURRENT",
		Message:  "max concurrent must be positive",
		ExitCode: hwerr.ExitInput,
	}

	ErrAlreadyScanning = &hwerr.HWError{
		Code:     "DISCOVERY_IN_PROGRESS",
		Message:  "a discovery scan is already running",
		ExitCode: hwerr.ExitGeneral,
	}
)

// Direction classifies a transaction from the account's point of view.
type Direction string

// Transaction directions.
const (
	DirectionReceived Direction = "received"
	DirectionSent     Direction = "sent"
	DirectionSelf     Direction = "self"
)

// TxSummary is one line of account history.
type TxSummary struct {
	TxID          string    `json:"txid"`
	Timestamp     int64     `json:"timestamp"`
	Direction     Direction `json:"direction"`
	Amount        uint64    `json:"amount"`
	Height        int64     `json:"height,omitempty"`
	Confirmations int64     `json:"confirmations"`
}

// History is an account's transactions, newest first.
type History []TxSummary

// AddressInfo is a derived address that has been used.
type AddressInfo struct {
	Address  string `json:"address"`
	Path     string `json:"path"`
	IsChange bool   `json:"is_change"`
	Index    uint32 `json:"index"`
	Used     bool   `json:"used"`
	Balance  uint64 `json:"balance"`
}

// Account is one discovered HD account.
type Account struct {
	Index     uint32          `json:"index"`
	Xpub      string          `json:"xpub"`
	Addresses []AddressInfo   `json:"addresses"`
	UTXOs     []explorer.UTXO `json:"utxos"`
	History   History         `json:"history"`

	// Balance is always the sum of UTXO satoshis.
	Balance uint64 `json:"balance"`

	Rewards         uint64 `json:"rewards"`
	ServiceFee      uint64 `json:"service_fee"`
	ClaimableAmount uint64 `json:"claimable_amount"`

	// NextReceiveIndex and NextChangeIndex are the first indices past the
	// last used address on each chain.
	NextReceiveIndex uint32 `json:"next_receive_index"`
	NextChangeIndex  uint32 `json:"next_change_index"`

	Incomplete      bool     `json:"incomplete,omitempty"`
	FailedAddresses []string `json:"failed_addresses,omitempty"`
}

// Used reports whether the account has any history or funds.
func (a *Account) Used() bool {
	return len(a.History) > 0 || len(a.UTXOs) > 0 || len(a.Addresses) > 0
}

// ExposedAddresses returns the addresses a user may choose from.
func (a *Account) ExposedAddresses() []AddressInfo {
	if len(a.Addresses) <= ExposedAddressCount {
		return a.Addresses
	}
	return a.Addresses[:ExposedAddressCount]
}

// HasAddress reports whether addr is one of the account's known addresses,
// including those whose queries failed.
func (a *Account) HasAddress(addr string) bool {
	for _, info := range a.Addresses {
		if info.Address == addr {
			return true
		}
	}
	return slices.Contains(a.FailedAddresses, addr)
}

// DisplayClaimable clamps the claimable amount for presentation.
func (a *Account) DisplayClaimable() uint64 {
	if a.ServiceFee > a.Rewards {
		return 0
	}
	return a.ClaimableAmount
}

// Result is the output of a completed scan.
type Result struct {
	Accounts   []Account     `json:"accounts"`
	TipTime    int64         `json:"tip_time"`
	Incomplete []uint32      `json:"incomplete,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Scanned    int           `json:"addresses_scanned"`
	Duration   time.Duration `json:"duration_ms"`
}

// TotalBalance sums the balance of every account.
func (r *Result) TotalBalance() uint64 {
	var total uint64
	for _, a := range r.Accounts {
		total += a.Balance
	}
	return total
}

// TotalClaimable sums the claimable rewards of every account.
func (r *Result) TotalClaimable() uint64 {
	var total uint64
	for _, a := range r.Accounts {
		total += a.DisplayClaimable()
	}
	return total
}

// Partial reports whether any account or the tip lookup was incomplete.
func (r *Result) Partial() bool {
	return len(r.Incomplete) > 0 || len(r.Warnings) > 0
}

// ProgressUpdate provides feedback during scanning.
type ProgressUpdate struct {
	// Phase is one of "account", "addresses", "rewards" or "done".
	Phase string

	Account          uint32
	AddressesScanned int
	AccountsFound    int
	BalanceFound     uint64
	Message          string
}

// ProgressCallback is called from the scanning goroutine.
type ProgressCallback func(ProgressUpdate)

// KeySource derives account xpubs. device.Device satisfies it.
type KeySource interface {
	DerivePublicKey(ctx context.Context, path string) (string, error)
}

// Explorer is the subset of explorer.API discovery needs.
type Explorer interface {
	GetTipTime(ctx context.Context) (int64, error)
	GetUTXOs(ctx context.Context, address string) ([]explorer.UTXO, error)
	GetHistory(ctx context.Context, address string) ([]explorer.Transaction, error)
}

// RewardsCalculator fills rewards for an account's outputs.
type RewardsCalculator interface {
	Calculate(ctx context.Context, utxos []explorer.UTXO, tipTime int64) (*rewards.Summary, error)
}

// Logger is the logging surface the engine needs.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Options configures the engine.
type Options struct {
	// AccountGap is how many consecutive unused accounts end the scan.
	AccountGap int

	// AddressGap is how many consecutive unused addresses end a chain.
	// It is also the window size queried at once.
	AddressGap int

	// MaxConcurrent limits parallel explorer requests.
	MaxConcurrent int

	// MaxAccounts bounds the account loop.
	MaxAccounts int

	// Retry wraps every per-address query.
	Retry chain.RetryConfig

	ProgressCallback ProgressCallback
	Metrics          *metrics.Metrics
	Logger           Logger
}

// DefaultOptions returns options for vendor's gap policy.
func DefaultOptions(vendor device.Vendor) *Options {
	p := vendor.GapPolicy()
	return &Options{
		AccountGap:    p.AccountGap,
		AddressGap:    p.AddressGap,
		MaxConcurrent: DefaultMaxConcurrent,
		MaxAccounts:   DefaultMaxAccounts,
		Retry:         chain.DefaultRetryConfig(),
	}
}

// Validate checks that the options are valid.
func (o *Options) Validate() error {
	if o.AccountGap <= 0 {
		return hwerr.WithDetails(ErrInvalidGapLimit, map[string]string{"account_gap": fmt.Sprintf("%d", o.AccountGap)})
	}
	if o.AddressGap <= 0 {
		return hwerr.WithDetails(ErrInvalidGapLimit, map[string]string{"address_gap": fmt.Sprintf("%d", o.AddressGap)})
	}
	if o.MaxConcurrent <= 0 {
		return hwerr.WithDetails(ErrInvalidMaxConcurrent, map[string]string{"value": fmt.Sprintf("%d", o.MaxConcurrent)})
	}
	return nil
}
