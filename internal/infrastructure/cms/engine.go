// Package cms implements the hash-and-sign engine and the signature verifier:
// SHA-256 over the canonical bytes, detached PKCS#7/CMS SignedData (RFC 5652)
// with the signer certificate embedded in the container. Signatures over the
// same document are not required to be byte-identical; they must all verify
// against the same digest.
package cms

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"go.mozilla.org/pkcs7"

	"github.com/digitalinvoice/signer-api/internal/domain"
	"github.com/digitalinvoice/signer-api/internal/domain/entity"
	"github.com/digitalinvoice/signer-api/internal/infrastructure/keystore"
)

// Engine produces signed artifacts. Stateless and safe for concurrent use;
// key material is supplied per call and never retained.
type Engine struct {
	now func() time.Time
}

// NewEngine creates the engine.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Sign computes the SHA-256 digest of the canonical document and produces a
// detached CMS signature over it with the supplied key material. Fails with
// ErrSigningFailed when the certificate is outside its validity window or the
// crypto primitive rejects the input; no partial artifact is ever returned.
func (e *Engine) Sign(ctx context.Context, inv *entity.Invoice, doc entity.CanonicalDocument, km *keystore.KeyMaterial) (*entity.SignedInvoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc.IsEmpty() {
		return nil, fmt.Errorf("%w: empty canonical document", domain.ErrSigningFailed)
	}
	if km == nil {
		return nil, fmt.Errorf("%w: no key material", domain.ErrSigningFailed)
	}

	now := e.now()
	if err := km.CheckValidity(now); err != nil {
		return nil, err
	}
	if err := km.CheckPair(); err != nil {
		return nil, err
	}

	content := doc.Bytes()
	digest := sha256.Sum256(content)

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("%w: init signed data: %v", domain.ErrSigningFailed, err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(km.Certificate(), km.Key(), pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("%w: add signer: %v", domain.ErrSigningFailed, err)
	}
	sd.Detach()
	signature, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("%w: finish signed data: %v", domain.ErrSigningFailed, err)
	}

	return entity.NewSignedInvoice(
		inv.ID,
		inv.InvoiceNumber,
		doc,
		digest[:],
		signature,
		km.Fingerprint(),
		km.Version(),
		now.UTC(),
	), nil
}
