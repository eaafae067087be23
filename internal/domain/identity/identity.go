// Package identity validates Israeli business identifiers (9 digits, the last
// being a check digit) with the registrar's weighted checksum: weights
// 1,2,1,2,… over all nine digits, products above 9 reduced by 9, weighted sum
// must be divisible by 10. Pure and deterministic, no I/O.
package identity

import (
	"fmt"
	"strings"

	"github.com/digitalinvoice/signer-api/internal/domain"
)

// IdentifierLength is the fixed length of a business identifier in digits.
const IdentifierLength = 9

// Normalize strips spaces, dashes and dots from an identifier. It does not
// validate; the result may still be malformed.
func Normalize(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.':
			return -1
		}
		return r
	}, id)
}

// Validate checks a business identifier. Formatting characters are stripped
// first. Returns ErrMalformedIdentifier for non-digit or wrong-length input
// and ErrChecksumFailed when the check digit does not match.
func Validate(id string) error {
	digits := Normalize(id)
	if len(digits) != IdentifierLength {
		return fmt.Errorf("%w: expected %d digits, got %d", domain.ErrMalformedIdentifier, IdentifierLength, len(digits))
	}
	sum := 0
	for i, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: non-digit character at position %d", domain.ErrMalformedIdentifier, i+1)
		}
		d := int(r - '0')
		if i%2 == 1 {
			d *= 2
		}
		if d > 9 {
			d -= 9
		}
		sum += d
	}
	if sum%10 != 0 {
		return fmt.Errorf("%w: %q", domain.ErrChecksumFailed, digits)
	}
	return nil
}
