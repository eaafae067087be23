// Package signing orchestrates the invoice signing pipeline:
//
//	RECEIVED → VALIDATED → CANONICALIZED → SIGNED → DELIVERED
//
// with REJECTED reachable from RECEIVED/VALIDATED on validation failure and
// SIGNING_FAILED from CANONICALIZED on key or crypto errors. Transitions are
// one-directional. Each run is an independent unit of work: runs share no
// mutable state and execute fully in parallel, coordinated only through the
// keystore checkout.
package signing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/digitalinvoice/signer-api/internal/domain"
	"github.com/digitalinvoice/signer-api/internal/domain/canonical"
	"github.com/digitalinvoice/signer-api/internal/domain/entity"
	"github.com/digitalinvoice/signer-api/internal/domain/identity"
	"github.com/digitalinvoice/signer-api/internal/domain/repository"
	"github.com/digitalinvoice/signer-api/internal/infrastructure/cms"
	"github.com/digitalinvoice/signer-api/internal/infrastructure/keystore"
	"github.com/digitalinvoice/signer-api/pkg/logger"
)

// Audit operation names.
const (
	opRejected      = "invoice_rejected"
	opSigned        = "invoice_signed"
	opResubmitted   = "invoice_resubmitted"
	opSigningFailed = "signing_failed"
	opDelivered     = "artifact_delivered"
)

// Pipeline sequences validation, canonicalization, signing and persistence.
type Pipeline struct {
	encoder       *canonical.Encoder
	engine        *cms.Engine
	keys          *keystore.Keystore
	store         repository.SignedInvoiceRepository
	audit         *AuditTrail
	log           *logger.Logger
	quantityScale int32
}

// NewPipeline builds the orchestrator with its dependencies.
func NewPipeline(
	encoder *canonical.Encoder,
	engine *cms.Engine,
	keys *keystore.Keystore,
	store repository.SignedInvoiceRepository,
	audit *AuditTrail,
	log *logger.Logger,
) *Pipeline {
	if audit == nil {
		audit = NewAuditTrail(0)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		encoder:       encoder,
		engine:        engine,
		keys:          keys,
		store:         store,
		audit:         audit,
		log:           log,
		quantityScale: encoder.QuantityScale(),
	}
}

// Audit exposes the pipeline's audit trail.
func (p *Pipeline) Audit() *AuditTrail { return p.audit }

// Process runs one invoice through the pipeline and returns its signed
// artifact. Resubmitting an already-signed invoice with identical content
// returns the stored artifact unchanged (signing is once per accepted
// invoice); reusing a signed number with different content is rejected as a
// duplicate. No error path returns a partial artifact: any failure after
// canonicalization begins discards all intermediate state.
func (p *Pipeline) Process(ctx context.Context, submitted *entity.Invoice) (*entity.SignedInvoice, error) {
	inv := freeze(submitted)
	log := p.log.With().
		Str("invoice_number", inv.InvoiceNumber).
		Str("supplier", inv.Supplier.BusinessID).
		Logger()
	log.Debug().Str("status", entity.StatusReceived).Msg("invoice received")

	// Idempotency: one SignedInvoice per accepted invoice. The stored
	// artifact is only returned when the resubmission carries the same
	// content: a number reused with different field values is a conflict,
	// never a silent match — a correction must be re-issued under a new
	// number carrying SupersedesID.
	if existing, err := p.store.FindArtifact(ctx, inv.Supplier.BusinessID, inv.InvoiceNumber); err == nil {
		doc, encErr := p.encoder.Encode(inv)
		if encErr != nil {
			return nil, encErr
		}
		digest := sha256.Sum256(doc.Bytes())
		if !bytes.Equal(digest[:], existing.Digest()) {
			p.audit.Record(opRejected, inv.InvoiceNumber, hex.EncodeToString(digest[:]), map[string]string{
				"reason":      "invoice number reused with different content",
				"artifact_id": existing.ID(),
			})
			log.Warn().Str("artifact_id", existing.ID()).Msg("invoice number reused with different content")
			return nil, fmt.Errorf("%w: invoice %s is already signed with different content; issue a correction under a new number", domain.ErrDuplicate, inv.InvoiceNumber)
		}
		p.audit.Record(opResubmitted, inv.InvoiceNumber, hex.EncodeToString(existing.Digest()), nil)
		log.Info().Str("artifact_id", existing.ID()).Msg("invoice already signed, returning stored artifact")
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("artifact lookup: %w", err)
	}

	if err := p.validate(inv); err != nil {
		p.audit.Record(opRejected, inv.InvoiceNumber, "", map[string]string{"reason": err.Error()})
		log.Warn().Err(err).Str("status", entity.StatusRejected).Msg("invoice rejected")
		return nil, err
	}
	log.Debug().Str("status", entity.StatusValidated).Msg("invoice validated")

	doc, err := p.encoder.Encode(inv)
	if err != nil {
		p.audit.Record(opRejected, inv.InvoiceNumber, "", map[string]string{"reason": err.Error()})
		log.Warn().Err(err).Str("status", entity.StatusRejected).Msg("invoice not encodable")
		return nil, err
	}
	log.Debug().Str("status", entity.StatusCanonicalized).Int("bytes", doc.Len()).Msg("invoice canonicalized")

	// Pin the key version for the whole signing operation; a rotation that
	// lands mid-flight does not affect this run.
	km := p.keys.Checkout()
	defer p.keys.Checkin(km)

	signed, err := p.engine.Sign(ctx, inv, doc, km)
	if err != nil {
		p.audit.Record(opSigningFailed, inv.InvoiceNumber, "", map[string]string{"reason": err.Error()})
		log.Error().Err(err).Str("status", entity.StatusSigningFailed).Msg("signing failed")
		return nil, err
	}

	// The SIGNED transition is atomic: sign, then durably persist the pair,
	// or neither is visible. A cancelled request discards the signature
	// rather than exposing it without its persisted invoice.
	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("run cancelled after signing, artifact discarded")
		return nil, err
	}
	if err := p.store.SaveSigned(ctx, inv, signed); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// Lost a race with a concurrent submission of the same invoice.
			// Converge on the winner's artifact only if it signed the same
			// content.
			if existing, ferr := p.store.FindArtifact(ctx, inv.Supplier.BusinessID, inv.InvoiceNumber); ferr == nil {
				if !bytes.Equal(existing.Digest(), signed.Digest()) {
					return nil, fmt.Errorf("%w: invoice %s is already signed with different content; issue a correction under a new number", domain.ErrDuplicate, inv.InvoiceNumber)
				}
				p.audit.Record(opResubmitted, inv.InvoiceNumber, hex.EncodeToString(existing.Digest()), nil)
				return existing, nil
			}
		}
		log.Error().Err(err).Msg("persisting signed invoice failed, artifact discarded")
		return nil, fmt.Errorf("persist signed invoice: %w", err)
	}

	digestHex := hex.EncodeToString(signed.Digest())
	p.audit.Record(opSigned, inv.InvoiceNumber, digestHex, map[string]string{
		"artifact_id": signed.ID(),
		"key_version": signed.KeyVersion(),
	})
	log.Info().
		Str("status", entity.StatusSigned).
		Str("artifact_id", signed.ID()).
		Str("digest", digestHex).
		Str("cert_fingerprint", signed.CertFingerprint()).
		Msg("invoice signed")
	return signed, nil
}

// MarkDelivered records the delivery collaborator's success report:
// SIGNED → DELIVERED. Delivery failure is not an event here — the artifact
// stays SIGNED and delivery is retried independently; legal validity was
// established by signing.
func (p *Pipeline) MarkDelivered(ctx context.Context, artifactID string) error {
	if err := p.store.MarkDelivered(ctx, artifactID); err != nil {
		return err
	}
	p.audit.Record(opDelivered, "", "", map[string]string{"artifact_id": artifactID})
	p.log.Info().Str("artifact_id", artifactID).Str("status", entity.StatusDelivered).Msg("artifact delivered")
	return nil
}

// freeze copies the submitted invoice into the frozen form the pipeline owns:
// business identifiers normalized, ID and timestamps assigned, items copied
// so later caller mutations cannot leak into canonicalization.
func freeze(submitted *entity.Invoice) *entity.Invoice {
	inv := *submitted
	inv.Items = append([]entity.LineItem(nil), submitted.Items...)
	inv.Supplier.BusinessID = identity.Normalize(inv.Supplier.BusinessID)
	inv.Customer.BusinessID = identity.Normalize(inv.Customer.BusinessID)
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	return &inv
}

// QuantityScale reports the scale this pipeline's encoder applies; exposed so
// submission validation in collaborators can match it.
func (p *Pipeline) QuantityScale() int32 { return p.quantityScale }
