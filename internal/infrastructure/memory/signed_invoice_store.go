// Package memory provides an in-memory SignedInvoiceRepository used by tests
// and by development mode when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/digitalinvoice/signer-api/internal/domain"
	"github.com/digitalinvoice/signer-api/internal/domain/entity"
	"github.com/digitalinvoice/signer-api/internal/domain/repository"
)

var _ repository.SignedInvoiceRepository = (*SignedInvoiceStore)(nil)

type record struct {
	invoice  entity.Invoice // frozen copy
	artifact *entity.SignedInvoice
	status   string
}

// SignedInvoiceStore keeps signed invoices keyed by supplier + invoice number.
// Safe for concurrent use.
type SignedInvoiceStore struct {
	mu       sync.RWMutex
	byNumber map[string]*record // supplierID + "\x00" + invoiceNumber
	byID     map[string]*record // artifact ID
}

// NewSignedInvoiceStore creates an empty store.
func NewSignedInvoiceStore() *SignedInvoiceStore {
	return &SignedInvoiceStore{
		byNumber: make(map[string]*record),
		byID:     make(map[string]*record),
	}
}

func key(supplierID, invoiceNumber string) string {
	return supplierID + "\x00" + invoiceNumber
}

// SaveSigned stores the invoice and artifact atomically (single lock scope).
func (s *SignedInvoiceStore) SaveSigned(ctx context.Context, inv *entity.Invoice, signed *entity.SignedInvoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(inv.Supplier.BusinessID, inv.InvoiceNumber)
	if _, exists := s.byNumber[k]; exists {
		return fmt.Errorf("%w: invoice %s for supplier %s", domain.ErrDuplicate, inv.InvoiceNumber, inv.Supplier.BusinessID)
	}

	frozen := *inv
	frozen.Items = append([]entity.LineItem(nil), inv.Items...)
	rec := &record{invoice: frozen, artifact: signed, status: entity.StatusSigned}
	s.byNumber[k] = rec
	s.byID[signed.ID()] = rec
	return nil
}

// FindArtifact looks up an artifact by supplier and invoice number.
func (s *SignedInvoiceStore) FindArtifact(ctx context.Context, supplierID, invoiceNumber string) (*entity.SignedInvoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byNumber[key(supplierID, invoiceNumber)]
	if !ok {
		return nil, fmt.Errorf("%w: artifact for invoice %s", domain.ErrNotFound, invoiceNumber)
	}
	return rec.artifact, nil
}

// MarkDelivered transitions SIGNED -> DELIVERED.
func (s *SignedInvoiceStore) MarkDelivered(ctx context.Context, artifactID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[artifactID]
	if !ok {
		return fmt.Errorf("%w: artifact %s", domain.ErrNotFound, artifactID)
	}
	if rec.status != entity.StatusSigned {
		return fmt.Errorf("%w: artifact %s is %s", domain.ErrInvalidTransition, artifactID, rec.status)
	}
	rec.status = entity.StatusDelivered
	return nil
}

// PurgeBefore removes delivered records signed before the cutoff.
func (s *SignedInvoiceStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, rec := range s.byID {
		if rec.status != entity.StatusDelivered || !rec.artifact.SignedAt().Before(cutoff) {
			continue
		}
		delete(s.byID, id)
		delete(s.byNumber, key(rec.invoice.Supplier.BusinessID, rec.invoice.InvoiceNumber))
		purged++
	}
	return purged, nil
}

// Status reports the lifecycle status of an artifact.
func (s *SignedInvoiceStore) Status(ctx context.Context, artifactID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[artifactID]
	if !ok {
		return "", fmt.Errorf("%w: artifact %s", domain.ErrNotFound, artifactID)
	}
	return rec.status, nil
}
