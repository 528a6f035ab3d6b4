package device

import (
	"fmt"
	"strings"

	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Vendor identifies a hardware wallet family.
type Vendor string

// Supported vendors.
const (
	Ledger Vendor = "ledger"
	Trezor Vendor = "trezor"
)

// Default gap policy for vendors without their own.
const (
	DefaultAccountGap = 1
	DefaultAddressGap = 20
)

// Vendors lists the supported vendors in display order.
func Vendors() []Vendor {
	return []Vendor{Ledger, Trezor}
}

// ParseVendor parses a vendor name case-insensitively.
func ParseVendor(s string) (Vendor, error) {
	switch Vendor(strings.ToLower(strings.TrimSpace(s))) {
	case Ledger:
		return Ledger, nil
	case Trezor:
		return Trezor, nil
	}
	return "", hwerr.WithDetails(hwerr.ErrUnknownVendor, map[string]string{
		"vendor":    s,
		"supported": "ledger, trezor",
	})
}

// String returns the vendor tag.
func (v Vendor) String() string {
	return string(v)
}

// DisplayName returns the brand name.
func (v Vendor) DisplayName() string {
	switch v {
	case Ledger:
		return "Ledger"
	case Trezor:
		return "Trezor"
	}
	return fmt.Sprintf("unknown(%s)", string(v))
}

// Valid reports whether v is a supported vendor.
func (v Vendor) Valid() bool {
	return v == Ledger || v == Trezor
}

// GapPolicy bounds account discovery.
type GapPolicy struct {
	// AccountGap is how many consecutive unused accounts end the scan.
	AccountGap int

	// AddressGap is how many consecutive unused addresses after the last
	// used one end a chain.
	AddressGap int
}

// GapPolicy returns the vendor's discovery policy. Unknown vendors get the
// defaults.
func (v Vendor) GapPolicy() GapPolicy {
	switch v {
	case Ledger:
		// Ledger Live adds an account only once the previous one has history.
		return GapPolicy{AccountGap: 1, AddressGap: 20}
	case Trezor:
		// Trezor Suite follows the BIP44 address gap and shows a single
		// empty account.
		return GapPolicy{AccountGap: 1, AddressGap: 20}
	}
	return GapPolicy{AccountGap: DefaultAccountGap, AddressGap: DefaultAddressGap}
}

// WithOverrides replaces non-zero fields of the policy.
func (p GapPolicy) WithOverrides(accountGap, addressGap int) GapPolicy {
	if accountGap > 0 {
		p.AccountGap = accountGap
	}
	if addressGap > 0 {
		p.AddressGap = addressGap
	}
	return p
}
