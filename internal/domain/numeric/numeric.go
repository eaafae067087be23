// Package numeric enforces the fixed-precision decimal rules shared by the
// validator and the canonical encoder. All monetary values carry exactly
// AmountScale fractional digits; quantities carry a configurable scale.
// Rounding is round-half-up everywhere. Binary floating point never enters
// this package: values are parsed from exact decimal text.
package numeric

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/digitalinvoice/signer-api/internal/domain"
)

const (
	// AmountScale is the fixed number of fractional digits for monetary
	// amounts and VAT rates.
	AmountScale int32 = 2

	// DefaultQuantityScale is the quantity scale used when none is configured.
	DefaultQuantityScale int32 = 3
)

// FromString parses exact decimal text. Scientific notation handled by the
// decimal parser is accepted; anything unparsable is ErrInvalidAmount.
func FromString(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, s)
	}
	return d, nil
}

// Normalize rounds d to the given number of places, half-up.
//
// decimal.Round rounds half away from zero, which coincides with half-up for
// the non-negative amounts and quantities this domain admits; negative values
// are rejected by validation before normalization is ever applied.
func Normalize(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// RequireScale rejects a submitted value whose fractional digits beyond the
// declared scale are significant. Trailing zeros ("50.000" at scale 2) lose
// nothing and pass. A declared amount is never silently rounded: rounding is
// reserved for computed values (line totals, VAT).
func RequireScale(d decimal.Decimal, places int32) error {
	if !d.Equal(d.Round(places)) {
		return fmt.Errorf("%w: %s has more than %d significant decimal places", domain.ErrInvalidAmount, d.String(), places)
	}
	return nil
}

// FormatAmount renders a monetary amount with exactly AmountScale fractional
// digits: no trailing-zero trimming, no scientific notation, '.' separator.
// The value must already satisfy RequireScale(d, AmountScale).
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

// FormatQuantity renders a quantity with exactly scale fractional digits.
func FormatQuantity(d decimal.Decimal, scale int32) string {
	if scale <= 0 {
		scale = DefaultQuantityScale
	}
	return d.StringFixed(scale)
}
