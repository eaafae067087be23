package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digitalinvoice/signer-api/internal/domain"
	"github.com/digitalinvoice/signer-api/internal/domain/entity"
	"github.com/digitalinvoice/signer-api/internal/domain/repository"
)

var _ repository.SignedInvoiceRepository = (*SignedInvoiceRepo)(nil)

// SignedInvoiceRepo persists frozen invoices and their signed artifacts.
type SignedInvoiceRepo struct {
	pool *pgxpool.Pool
}

// NewSignedInvoiceRepository builds the adapter over a pool.
func NewSignedInvoiceRepository(pool *pgxpool.Pool) *SignedInvoiceRepo {
	return &SignedInvoiceRepo{pool: pool}
}

// Migrate creates the tables when missing. Invoked by the composition root.
func (r *SignedInvoiceRepo) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id                    TEXT PRIMARY KEY,
	invoice_number        TEXT NOT NULL,
	issue_date            DATE NOT NULL,
	currency              TEXT NOT NULL,
	allocation_number     TEXT,
	supersedes_id         TEXT,
	supplier_name         TEXT NOT NULL,
	supplier_business_id  TEXT NOT NULL,
	customer_name         TEXT NOT NULL,
	customer_business_id  TEXT,
	subtotal              NUMERIC(18,2) NOT NULL,
	total_vat             NUMERIC(18,2) NOT NULL,
	grand_total           NUMERIC(18,2) NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	UNIQUE (supplier_business_id, invoice_number)
);

CREATE TABLE IF NOT EXISTS invoice_items (
	id             TEXT PRIMARY KEY,
	invoice_id     TEXT NOT NULL REFERENCES invoices(id),
	position       INT NOT NULL,
	description    TEXT NOT NULL,
	quantity       NUMERIC(18,6) NOT NULL,
	unit_price     NUMERIC(18,2) NOT NULL,
	vat_rate       NUMERIC(5,2) NOT NULL,
	line_total     NUMERIC(18,2) NOT NULL,
	vat_amount     NUMERIC(18,2) NOT NULL,
	total_with_vat NUMERIC(18,2) NOT NULL,
	UNIQUE (invoice_id, position)
);

CREATE TABLE IF NOT EXISTS signed_invoices (
	id                   TEXT PRIMARY KEY,
	invoice_id           TEXT NOT NULL REFERENCES invoices(id),
	invoice_number       TEXT NOT NULL,
	supplier_business_id TEXT NOT NULL,
	canonical            BYTEA NOT NULL,
	digest               BYTEA NOT NULL,
	signature            BYTEA NOT NULL,
	cert_fingerprint     TEXT NOT NULL,
	key_version          TEXT NOT NULL,
	signed_at            TIMESTAMPTZ NOT NULL,
	status               TEXT NOT NULL,
	delivered_at         TIMESTAMPTZ,
	UNIQUE (supplier_business_id, invoice_number)
);`

// SaveSigned stores the invoice header, its line items and the artifact in a
// single transaction: the SIGNED state becomes durably visible atomically or
// not at all.
func (r *SignedInvoiceRepo) SaveSigned(ctx context.Context, inv *entity.Invoice, signed *entity.SignedInvoice) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO invoices (id, invoice_number, issue_date, currency, allocation_number, supersedes_id,
			supplier_name, supplier_business_id, customer_name, customer_business_id,
			subtotal, total_vat, grand_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		inv.ID, inv.InvoiceNumber, inv.IssueDate, inv.Currency,
		nullIfEmpty(inv.AllocationNumber), nullIfEmpty(inv.SupersedesID),
		inv.Supplier.Name, inv.Supplier.BusinessID,
		inv.Customer.Name, nullIfEmpty(inv.Customer.BusinessID),
		inv.Subtotal, inv.TotalVAT, inv.GrandTotal, inv.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: invoice %s for supplier %s", domain.ErrDuplicate, inv.InvoiceNumber, inv.Supplier.BusinessID)
		}
		return fmt.Errorf("insert invoice: %w", err)
	}

	for i, item := range inv.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, position, description, quantity, unit_price, vat_rate, line_total, vat_amount, total_with_vat)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			uuid.New().String(), inv.ID, i, item.Description,
			item.Quantity, item.UnitPrice, item.VATRate,
			item.LineTotal, item.VATAmount, item.TotalWithVAT,
		)
		if err != nil {
			return fmt.Errorf("insert invoice item %d: %w", i, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO signed_invoices (id, invoice_id, invoice_number, supplier_business_id,
			canonical, digest, signature, cert_fingerprint, key_version, signed_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		signed.ID(), signed.InvoiceID(), signed.InvoiceNumber(), inv.Supplier.BusinessID,
		signed.Document().Bytes(), signed.Digest(), signed.Signature(),
		signed.CertFingerprint(), signed.KeyVersion(), signed.SignedAt(), entity.StatusSigned,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: artifact for invoice %s", domain.ErrDuplicate, inv.InvoiceNumber)
		}
		return fmt.Errorf("insert signed invoice: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FindArtifact rehydrates the artifact for a supplier's invoice number.
func (r *SignedInvoiceRepo) FindArtifact(ctx context.Context, supplierID, invoiceNumber string) (*entity.SignedInvoice, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, invoice_id, invoice_number, canonical, digest, signature, cert_fingerprint, key_version, signed_at
		FROM signed_invoices
		WHERE supplier_business_id = $1 AND invoice_number = $2`,
		supplierID, invoiceNumber,
	)

	var (
		id, invoiceID, number, fingerprint, keyVersion string
		canonicalBytes, digest, signature              []byte
		signedAt                                       time.Time
	)
	err := row.Scan(&id, &invoiceID, &number, &canonicalBytes, &digest, &signature, &fingerprint, &keyVersion, &signedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: artifact for invoice %s", domain.ErrNotFound, invoiceNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("query signed invoice: %w", err)
	}

	return entity.RestoreSignedInvoice(
		id, invoiceID, number,
		entity.NewCanonicalDocument(canonicalBytes),
		digest, signature, fingerprint, keyVersion, signedAt,
	), nil
}

// MarkDelivered transitions SIGNED -> DELIVERED.
func (r *SignedInvoiceRepo) MarkDelivered(ctx context.Context, artifactID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE signed_invoices SET status = $1, delivered_at = $2
		WHERE id = $3 AND status = $4`,
		entity.StatusDelivered, time.Now().UTC(), artifactID, entity.StatusSigned,
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		status, serr := r.Status(ctx, artifactID)
		if serr != nil {
			return serr
		}
		return fmt.Errorf("%w: artifact %s is %s", domain.ErrInvalidTransition, artifactID, status)
	}
	return nil
}

// PurgeBefore removes delivered artifacts signed before the cutoff, together
// with their invoice rows, in one transaction.
func (r *SignedInvoiceRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, invoice_id FROM signed_invoices
		WHERE status = $1 AND signed_at < $2`,
		entity.StatusDelivered, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("select expired artifacts: %w", err)
	}
	var artifactIDs, invoiceIDs []string
	for rows.Next() {
		var artifactID, invoiceID string
		if err := rows.Scan(&artifactID, &invoiceID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired artifact: %w", err)
		}
		artifactIDs = append(artifactIDs, artifactID)
		invoiceIDs = append(invoiceIDs, invoiceID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("select expired artifacts: %w", err)
	}
	if len(artifactIDs) == 0 {
		return 0, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = ANY($1)`, invoiceIDs); err != nil {
		return 0, fmt.Errorf("purge invoice items: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM signed_invoices WHERE id = ANY($1)`, artifactIDs); err != nil {
		return 0, fmt.Errorf("purge signed invoices: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM invoices WHERE id = ANY($1)`, invoiceIDs); err != nil {
		return 0, fmt.Errorf("purge invoices: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(artifactIDs), nil
}

// Status reports the lifecycle status of an artifact.
func (r *SignedInvoiceRepo) Status(ctx context.Context, artifactID string) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM signed_invoices WHERE id = $1`, artifactID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: artifact %s", domain.ErrNotFound, artifactID)
	}
	if err != nil {
		return "", fmt.Errorf("query status: %w", err)
	}
	return status, nil
}
