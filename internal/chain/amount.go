package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// kmdDecimals is the number of decimal places in one KMD.
const kmdDecimals = 8

// FormatKMD converts satoshis to a decimal KMD string with all eight
// decimal places, e.g. 150000 -> "0.00150000".
func FormatKMD(sats uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(sats), -kmdDecimals).StringFixed(kmdDecimals)
}

// FormatKMDShort formats satoshis with trailing zeros trimmed, keeping at
// least one decimal place ("1.5", "0.0015", "10.0").
func FormatKMDShort(sats uint64) string {
	s := FormatKMD(sats)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

// ParseKMD parses a decimal KMD amount ("1.5", "0.00010000") into satoshis.
// Negative values and more than eight decimal places are rejected.
func ParseKMD(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", hwerr.ErrInvalidInput)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid amount %q", hwerr.ErrInvalidInput, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %q", hwerr.ErrInvalidInput, s)
	}
	if d.Exponent() < -kmdDecimals && !d.Equal(d.Truncate(kmdDecimals)) {
		return 0, fmt.Errorf("%w: amount %q has more than %d decimal places", hwerr.ErrInvalidInput, s, kmdDecimals)
	}

	sats := d.Shift(kmdDecimals)
	if !sats.BigInt().IsUint64() {
		return 0, fmt.Errorf("%w: amount %q out of range", hwerr.ErrInvalidInput, s)
	}
	return sats.BigInt().Uint64(), nil
}
