package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalinvoice/signer-api/internal/domain"
	"github.com/digitalinvoice/signer-api/internal/domain/entity"
)

func storedArtifact(invoiceID, number string) *entity.SignedInvoice {
	doc := entity.NewCanonicalDocument([]byte{0x49, 0x4C, 0x01, 0x00})
	return entity.NewSignedInvoice(
		invoiceID, number, doc,
		[]byte("digest-bytes-32-aaaaaaaaaaaaaaaa"),
		[]byte("signature"),
		"fingerprint", "v1", time.Now().UTC(),
	)
}

func storedInvoice(number string) *entity.Invoice {
	return &entity.Invoice{
		ID:            "inv-" + number,
		InvoiceNumber: number,
		Supplier:      entity.Party{Name: "Acme", BusinessID: "123456782"},
		Customer:      entity.Party{Name: "Beta"},
	}
}

func TestSaveAndFind(t *testing.T) {
	store := NewSignedInvoiceStore()
	ctx := context.Background()

	inv := storedInvoice("INV-001")
	signed := storedArtifact(inv.ID, inv.InvoiceNumber)
	require.NoError(t, store.SaveSigned(ctx, inv, signed))

	found, err := store.FindArtifact(ctx, "123456782", "INV-001")
	require.NoError(t, err)
	assert.Equal(t, signed.ID(), found.ID())

	_, err = store.FindArtifact(ctx, "123456782", "INV-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.FindArtifact(ctx, "512345679", "INV-001")
	assert.ErrorIs(t, err, domain.ErrNotFound, "uniqueness is scoped per supplier")
}

func TestSaveSigned_Duplicate(t *testing.T) {
	store := NewSignedInvoiceStore()
	ctx := context.Background()

	inv := storedInvoice("INV-001")
	require.NoError(t, store.SaveSigned(ctx, inv, storedArtifact(inv.ID, inv.InvoiceNumber)))

	err := store.SaveSigned(ctx, inv, storedArtifact(inv.ID, inv.InvoiceNumber))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestStatusLifecycle(t *testing.T) {
	store := NewSignedInvoiceStore()
	ctx := context.Background()

	inv := storedInvoice("INV-001")
	signed := storedArtifact(inv.ID, inv.InvoiceNumber)
	require.NoError(t, store.SaveSigned(ctx, inv, signed))

	status, err := store.Status(ctx, signed.ID())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSigned, status)

	require.NoError(t, store.MarkDelivered(ctx, signed.ID()))
	status, err = store.Status(ctx, signed.ID())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDelivered, status)

	err = store.MarkDelivered(ctx, signed.ID())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = store.MarkDelivered(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPurgeBefore(t *testing.T) {
	store := NewSignedInvoiceStore()
	ctx := context.Background()
	old := time.Now().UTC().AddDate(-8, 0, 0)

	oldArtifact := func(number string) *entity.SignedInvoice {
		doc := entity.NewCanonicalDocument([]byte{0x49, 0x4C, 0x01, 0x00})
		return entity.NewSignedInvoice(
			"inv-"+number, number, doc,
			[]byte("digest"), []byte("signature"),
			"fingerprint", "v1", old,
		)
	}

	// Delivered and past retention: purged.
	expired := storedInvoice("INV-OLD-DELIVERED")
	expiredArtifact := oldArtifact(expired.InvoiceNumber)
	require.NoError(t, store.SaveSigned(ctx, expired, expiredArtifact))
	require.NoError(t, store.MarkDelivered(ctx, expiredArtifact.ID()))

	// Past retention but never delivered: kept.
	undelivered := storedInvoice("INV-OLD-SIGNED")
	undeliveredArtifact := oldArtifact(undelivered.InvoiceNumber)
	require.NoError(t, store.SaveSigned(ctx, undelivered, undeliveredArtifact))

	// Delivered but recent: kept.
	recent := storedInvoice("INV-NEW-DELIVERED")
	recentArtifact := storedArtifact(recent.ID, recent.InvoiceNumber)
	require.NoError(t, store.SaveSigned(ctx, recent, recentArtifact))
	require.NoError(t, store.MarkDelivered(ctx, recentArtifact.ID()))

	purged, err := store.PurgeBefore(ctx, time.Now().UTC().AddDate(-7, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = store.FindArtifact(ctx, "123456782", "INV-OLD-DELIVERED")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.FindArtifact(ctx, "123456782", "INV-OLD-SIGNED")
	assert.NoError(t, err, "undelivered artifacts are never reaped")
	_, err = store.FindArtifact(ctx, "123456782", "INV-NEW-DELIVERED")
	assert.NoError(t, err)
}

func TestContextCancellation(t *testing.T) {
	store := NewSignedInvoiceStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := storedInvoice("INV-001")
	err := store.SaveSigned(ctx, inv, storedArtifact(inv.ID, inv.InvoiceNumber))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = store.FindArtifact(ctx, "123456782", "INV-001")
	assert.ErrorIs(t, err, context.Canceled)
}
