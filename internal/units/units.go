// Package units converts between human readable decimal amounts and the raw
// integer amounts found in event logs and receipts.
package units

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Value converts a configured floating point amount into raw integer units for
// an asset with the given number of decimals. Fractional digits beyond the
// asset precision are truncated. Negative inputs yield zero and values that do
// not fit in 256 bits saturate.
func Value(valueFP float64, decimals uint8) *uint256.Int {
	d := decimal.NewFromFloat(valueFP)
	if d.Sign() <= 0 {
		return new(uint256.Int)
	}

	raw := d.Shift(int32(decimals)).Truncate(0)
	v, overflow := uint256.FromBig(raw.BigInt())
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return v
}

// Format renders a raw amount as a decimal string scaled by decimals.
func Format(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}
