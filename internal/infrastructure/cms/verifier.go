package cms

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"

	"go.mozilla.org/pkcs7"

	"github.com/digitalinvoice/signer-api/internal/domain"
	"github.com/digitalinvoice/signer-api/internal/domain/canonical"
	"github.com/digitalinvoice/signer-api/internal/domain/entity"
)

// Verifier re-derives the canonical document from stored invoice data,
// recomputes the digest and checks the detached signature against it using
// the certificate embedded in the CMS container. Any post-signing change to
// any field, including line-item order, is detected here.
type Verifier struct {
	encoder *canonical.Encoder
	roots   *x509.CertPool
}

// NewVerifier creates a verifier using the given encoder (it must match the
// quantity scale the document was signed with).
func NewVerifier(encoder *canonical.Encoder) *Verifier {
	return &Verifier{encoder: encoder}
}

// WithTrustRoots enables certificate-chain evaluation against the given pool.
// Chain policy itself belongs to an external collaborator; the verifier only
// reports the outcome as ErrCertificateUntrusted.
func (v *Verifier) WithTrustRoots(roots *x509.CertPool) *Verifier {
	v.roots = roots
	return v
}

// Verify checks the signed artifact against the invoice data.
//
//   - ErrContentMismatch: the recomputed digest differs from the signed one —
//     the content was altered after signing.
//   - ErrSignatureInvalid: the container is corrupted or the cryptographic
//     check fails.
//   - ErrCertificateUntrusted: trust roots are configured and chain
//     evaluation failed.
func (v *Verifier) Verify(inv *entity.Invoice, signed *entity.SignedInvoice) error {
	if signed == nil {
		return fmt.Errorf("%w: no signed artifact", domain.ErrSignatureInvalid)
	}

	doc, err := v.encoder.Encode(inv)
	if err != nil {
		return fmt.Errorf("%w: re-encoding invoice: %v", domain.ErrContentMismatch, err)
	}
	content := doc.Bytes()
	digest := sha256.Sum256(content)
	if !bytes.Equal(digest[:], signed.Digest()) {
		return fmt.Errorf("%w: recomputed digest %x, signed digest %x", domain.ErrContentMismatch, digest, signed.Digest())
	}

	p7, err := pkcs7.Parse(signed.Signature())
	if err != nil {
		return fmt.Errorf("%w: parse container: %v", domain.ErrSignatureInvalid, err)
	}
	p7.Content = content

	if v.roots != nil {
		err = p7.VerifyWithChain(v.roots)
	} else {
		err = p7.Verify()
	}
	if err != nil {
		return classifyVerifyError(err)
	}
	return nil
}

// SignerCertificate extracts the single signer certificate embedded in the
// artifact, for collaborators that render or archive signer identity.
func SignerCertificate(signed *entity.SignedInvoice) (*x509.Certificate, error) {
	p7, err := pkcs7.Parse(signed.Signature())
	if err != nil {
		return nil, fmt.Errorf("%w: parse container: %v", domain.ErrSignatureInvalid, err)
	}
	cert := p7.GetOnlySigner()
	if cert == nil {
		return nil, fmt.Errorf("%w: expected exactly one signer", domain.ErrSignatureInvalid)
	}
	return cert, nil
}

func classifyVerifyError(err error) error {
	var unknownAuthority x509.UnknownAuthorityError
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &unknownAuthority) || errors.As(err, &certInvalid) {
		return fmt.Errorf("%w: %v", domain.ErrCertificateUntrusted, err)
	}
	// A signed-attribute digest mismatch means the content, not the
	// signature bytes, changed after signing.
	var digestMismatch *pkcs7.MessageDigestMismatchError
	if errors.As(err, &digestMismatch) {
		return fmt.Errorf("%w: %v", domain.ErrContentMismatch, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
}
