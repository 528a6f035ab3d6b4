// Package errors provides structured error handling for hwclaim.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Refused operation (already claimed, insufficient funds)
	ExitDevice     = 6 // Hardware wallet absent, busy, or user rejected
	ExitNetwork    = 7 // Explorer unreachable or timed out
)

// HWError is the structured error type for hwclaim.
type HWError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *HWError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *HWError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for HWError.
func (e *HWError) Is(target error) bool {
	var t *HWError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &HWError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &HWError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &HWError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	ErrInsufficientFunds = &HWError{
		Code:     "INSUFFICIENT_FUNDS",
		Message:  "insufficient funds for transaction",
		ExitCode: ExitPermission,
	}

	// Explorer errors.
	ErrNetworkError = &HWError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitNetwork,
	}

	ErrNoExplorerReachable = &HWError{
		Code:       "NO_EXPLORER_REACHABLE",
		Message:    "no explorer endpoint is reachable",
		Suggestion: "check your connection or pick an endpoint with 'hwclaim endpoint use <name>'",
		ExitCode:   ExitNetwork,
	}

	ErrUnknownEndpoint = &HWError{
		Code:     "UNKNOWN_ENDPOINT",
		Message:  "unknown explorer endpoint",
		ExitCode: ExitInput,
	}

	ErrTxRejected = &HWError{
		Code:     "TX_REJECTED",
		Message:  "transaction rejected by network",
		ExitCode: ExitNetwork,
	}

	// Device errors.
	ErrDevice = &HWError{
		Code:     "DEVICE_ERROR",
		Message:  "hardware wallet error",
		ExitCode: ExitDevice,
	}

	ErrDeviceNotConnected = &HWError{
		Code:       "DEVICE_NOT_CONNECTED",
		Message:    "hardware wallet is not connected",
		Suggestion: "connect and unlock the device, then open the Komodo app if required",
		ExitCode:   ExitDevice,
	}

	ErrDeviceRejected = &HWError{
		Code:     "DEVICE_REJECTED",
		Message:  "request was rejected on the device",
		ExitCode: ExitDevice,
	}

	ErrDeviceBusy = &HWError{
		Code:     "DEVICE_BUSY",
		Message:  "hardware wallet is busy with another request",
		ExitCode: ExitDevice,
	}

	ErrDeviceReset = &HWError{
		Code:     "DEVICE_RESET",
		Message:  "device session was reset",
		ExitCode: ExitDevice,
	}

	ErrUnknownVendor = &HWError{
		Code:     "UNKNOWN_VENDOR",
		Message:  "unknown hardware wallet vendor",
		ExitCode: ExitInput,
	}

	// Session errors.
	ErrVendorNotSelected = &HWError{
		Code:       "VENDOR_NOT_SELECTED",
		Message:    "no hardware wallet vendor selected",
		Suggestion: "run 'hwclaim vendor ledger' or 'hwclaim vendor trezor' first",
		ExitCode:   ExitInput,
	}

	ErrVendorAlreadySelected = &HWError{
		Code:       "VENDOR_ALREADY_SELECTED",
		Message:    "a hardware wallet vendor is already selected for this session",
		Suggestion: "run 'hwclaim reset' to switch vendors",
		ExitCode:   ExitInput,
	}

	ErrNoAccounts = &HWError{
		Code:       "NO_ACCOUNTS",
		Message:    "no accounts discovered yet",
		Suggestion: "run 'hwclaim discover' first",
		ExitCode:   ExitNotFound,
	}

	// Discovery errors.
	ErrDiscoveryPartial = &HWError{
		Code:     "DISCOVERY_PARTIAL_FAILURE",
		Message:  "some accounts could not be fully scanned",
		ExitCode: ExitNetwork,
	}

	ErrDiscoveryFailed = &HWError{
		Code:     "DISCOVERY_FAILED",
		Message:  "account discovery failed",
		ExitCode: ExitNetwork,
	}

	ErrInvariantViolation = &HWError{
		Code:     "INVARIANT_VIOLATION",
		Message:  "internal invariant violated",
		ExitCode: ExitGeneral,
	}

	// Claim errors.
	ErrAlreadyClaimed = &HWError{
		Code:     "ALREADY_CLAIMED",
		Message:  "rewards for this account were already claimed",
		ExitCode: ExitPermission,
	}

	ErrClaimInProgress = &HWError{
		Code:     "CLAIM_IN_PROGRESS",
		Message:  "a claim for this account is already in progress",
		ExitCode: ExitPermission,
	}

	ErrNothingToClaim = &HWError{
		Code:     "NOTHING_TO_CLAIM",
		Message:  "claimable rewards do not cover the transaction fee",
		ExitCode: ExitPermission,
	}

	ErrInvalidAddress = &HWError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrAddressReuse = &HWError{
		Code:       "ADDRESS_REUSE_NOT_ALLOWED",
		Message:    "sending rewards to an existing address links your addresses together",
		Suggestion: "omit --address to use a fresh address, or pass --allow-address-reuse",
		ExitCode:   ExitInput,
	}

	// Config errors.
	ErrConfigInvalid = &HWError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &HWError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitInput,
	}
)

// New creates a new HWError with the given code and message.
func New(code, message string) *HWError {
	return &HWError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var he *HWError
	if errors.As(err, &he) {
		return &HWError{
			Code:       he.Code,
			Message:    fmt.Sprintf("%s: %s", msg, he.Message),
			Details:    he.Details,
			Suggestion: he.Suggestion,
			Cause:      err,
			ExitCode:   he.ExitCode,
		}
	}

	return &HWError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var he *HWError
	if errors.As(err, &he) {
		return &HWError{
			Code:       he.Code,
			Message:    he.Message,
			Details:    details,
			Suggestion: he.Suggestion,
			Cause:      he.Cause,
			ExitCode:   he.ExitCode,
		}
	}

	return &HWError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var he *HWError
	if errors.As(err, &he) {
		return &HWError{
			Code:       he.Code,
			Message:    he.Message,
			Details:    he.Details,
			Suggestion: suggestion,
			Cause:      he.Cause,
			ExitCode:   he.ExitCode,
		}
	}

	return &HWError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var he *HWError
	if errors.As(err, &he) {
		return he.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var he *HWError
	if errors.As(err, &he) {
		return he.Code
	}
	return "GENERAL_ERROR"
}

// IsRecoverable reports whether the caller may retry the failed operation.
// Network and device failures are recoverable; invariant violations and
// terminal claim states are not.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvariantViolation),
		errors.Is(err, ErrAlreadyClaimed):
		return false
	case errors.Is(err, ErrNetworkError),
		errors.Is(err, ErrNoExplorerReachable),
		errors.Is(err, ErrTxRejected),
		errors.Is(err, ErrDevice),
		errors.Is(err, ErrDeviceNotConnected),
		errors.Is(err, ErrDeviceRejected),
		errors.Is(err, ErrDeviceBusy),
		errors.Is(err, ErrDeviceReset),
		errors.Is(err, ErrClaimInProgress),
		errors.Is(err, ErrDiscoveryPartial):
		return true
	}
	return false
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
