package repository

import (
	"context"
	"time"

	"github.com/digitalinvoice/signer-api/internal/domain/entity"
)

// SignedInvoiceRepository persists accepted invoices together with their
// signed artifacts.
//
// SaveSigned must be atomic: either the invoice and its artifact both become
// durably visible, or neither does. This is what makes the orchestrator's
// Signed transition safe against cancellation between signing and persisting.
type SignedInvoiceRepository interface {
	// SaveSigned stores the frozen invoice and its artifact in one unit.
	// Returns ErrDuplicate when the supplier already signed this number.
	SaveSigned(ctx context.Context, inv *entity.Invoice, signed *entity.SignedInvoice) error

	// FindArtifact looks up the artifact for a supplier's invoice number.
	// Returns ErrNotFound when no artifact exists.
	FindArtifact(ctx context.Context, supplierID, invoiceNumber string) (*entity.SignedInvoice, error)

	// MarkDelivered transitions an artifact SIGNED → DELIVERED. Returns
	// ErrNotFound for an unknown artifact and ErrInvalidTransition when the
	// artifact is not in SIGNED state. Delivery failure never reverts SIGNED;
	// the caller simply retries later.
	MarkDelivered(ctx context.Context, artifactID string) error

	// Status reports the lifecycle status of an artifact.
	Status(ctx context.Context, artifactID string) (string, error)

	// PurgeBefore removes invoices and artifacts signed before the cutoff
	// and returns how many were removed. Only DELIVERED artifacts are
	// eligible: retention applies to the archive, never to artifacts still
	// awaiting delivery.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}
