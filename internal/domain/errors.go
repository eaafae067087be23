package domain

import "errors"

// Domain errors (no external dependencies).
//
// Validation and encoding errors are recoverable: the caller corrects the
// submission and resubmits. Signing errors are operational faults surfaced to
// operators. Tamper errors are fatal to trust in the artifact and are never
// auto-corrected.
var (
	// Validation
	ErrMalformedIdentifier = errors.New("business identifier is malformed")
	ErrChecksumFailed      = errors.New("business identifier checksum mismatch")
	ErrUnreconciledTotals  = errors.New("invoice totals do not reconcile")
	ErrInvalidInput        = errors.New("invalid input")

	// Encoding
	ErrInvalidAmount    = errors.New("amount exceeds declared precision")
	ErrUnsupportedValue = errors.New("field value not representable in canonical form")

	// Signing (operational)
	ErrSigningFailed = errors.New("signing failed")
	ErrKeyLoad       = errors.New("key material could not be loaded")

	// Tamper detection
	ErrContentMismatch      = errors.New("signed content does not match invoice data")
	ErrSignatureInvalid     = errors.New("signature is cryptographically invalid")
	ErrCertificateUntrusted = errors.New("signer certificate is not trusted")

	// Storage / lifecycle
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicate         = errors.New("resource already exists")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)
