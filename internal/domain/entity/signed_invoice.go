package entity

import (
	"time"

	"github.com/google/uuid"
)

// CanonicalDocument is the unique deterministic byte encoding of an invoice,
// used solely as signing input. The bytes are immutable: both the constructor
// and Bytes copy.
type CanonicalDocument struct {
	data []byte
}

// NewCanonicalDocument wraps an encoded byte sequence.
func NewCanonicalDocument(data []byte) CanonicalDocument {
	cp := make([]byte, len(data))
	copy(cp, data)
	return CanonicalDocument{data: cp}
}

// Bytes returns a copy of the canonical byte sequence.
func (d CanonicalDocument) Bytes() []byte {
	cp := make([]byte, len(d.data))
	copy(cp, d.data)
	return cp
}

// Len returns the encoded length in bytes.
func (d CanonicalDocument) Len() int { return len(d.data) }

// IsEmpty reports whether the document holds no bytes.
func (d CanonicalDocument) IsEmpty() bool { return len(d.data) == 0 }

// SignedInvoice is the terminal, immutable signed artifact: the canonical
// document, its SHA-256 digest, a detached PKCS#7/CMS signature with the
// signer certificate embedded, and signer identity metadata. It is constructed
// once and exposes no mutators; a corrected invoice supersedes it, it is never
// updated.
type SignedInvoice struct {
	id              string
	invoiceID       string
	invoiceNumber   string
	document        CanonicalDocument
	digest          []byte
	signature       []byte
	certFingerprint string // SHA-256 of the signer certificate DER, hex
	keyVersion      string
	signedAt        time.Time
}

// NewSignedInvoice constructs the artifact. Digest and signature are copied.
func NewSignedInvoice(invoiceID, invoiceNumber string, doc CanonicalDocument, digest, signature []byte, certFingerprint, keyVersion string, signedAt time.Time) *SignedInvoice {
	return RestoreSignedInvoice(uuid.New().String(), invoiceID, invoiceNumber, doc, digest, signature, certFingerprint, keyVersion, signedAt)
}

// RestoreSignedInvoice rehydrates an artifact from storage with its original ID.
func RestoreSignedInvoice(id, invoiceID, invoiceNumber string, doc CanonicalDocument, digest, signature []byte, certFingerprint, keyVersion string, signedAt time.Time) *SignedInvoice {
	d := make([]byte, len(digest))
	copy(d, digest)
	s := make([]byte, len(signature))
	copy(s, signature)
	return &SignedInvoice{
		id:              id,
		invoiceID:       invoiceID,
		invoiceNumber:   invoiceNumber,
		document:        doc,
		digest:          d,
		signature:       s,
		certFingerprint: certFingerprint,
		keyVersion:      keyVersion,
		signedAt:        signedAt,
	}
}

func (s *SignedInvoice) ID() string                  { return s.id }
func (s *SignedInvoice) InvoiceID() string           { return s.invoiceID }
func (s *SignedInvoice) InvoiceNumber() string       { return s.invoiceNumber }
func (s *SignedInvoice) Document() CanonicalDocument { return s.document }
func (s *SignedInvoice) CertFingerprint() string     { return s.certFingerprint }
func (s *SignedInvoice) KeyVersion() string          { return s.keyVersion }
func (s *SignedInvoice) SignedAt() time.Time         { return s.signedAt }

// Digest returns a copy of the SHA-256 digest of the canonical bytes.
func (s *SignedInvoice) Digest() []byte {
	cp := make([]byte, len(s.digest))
	copy(cp, s.digest)
	return cp
}

// Signature returns a copy of the detached CMS signature (DER).
func (s *SignedInvoice) Signature() []byte {
	cp := make([]byte, len(s.signature))
	copy(cp, s.signature)
	return cp
}
