package signing

import (
	"fmt"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/digitalinvoice/signer-api/internal/domain"
	"github.com/digitalinvoice/signer-api/internal/domain/entity"
	"github.com/digitalinvoice/signer-api/internal/domain/identity"
	"github.com/digitalinvoice/signer-api/internal/domain/numeric"
)

const maxInvoiceNumberLen = 50

var hundred = decimal.NewFromInt(100)

// validate runs the RECEIVED -> VALIDATED checks: identity checksums,
// structural invariants, declared scales and total reconciliation. Any
// failure sends the run to REJECTED; the caller corrects and resubmits.
func (p *Pipeline) validate(inv *entity.Invoice) error {
	if inv.InvoiceNumber == "" || len(inv.InvoiceNumber) > maxInvoiceNumberLen {
		return fmt.Errorf("%w: invoice number must be 1..%d characters", domain.ErrInvalidInput, maxInvoiceNumberLen)
	}
	for _, r := range inv.InvoiceNumber {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("%w: invoice number contains control characters", domain.ErrInvalidInput)
		}
	}
	if inv.IssueDate.IsZero() {
		return fmt.Errorf("%w: issue date is required", domain.ErrInvalidInput)
	}

	if inv.Supplier.Name == "" {
		return fmt.Errorf("%w: supplier name is required", domain.ErrInvalidInput)
	}
	if err := identity.Validate(inv.Supplier.BusinessID); err != nil {
		return fmt.Errorf("supplier: %w", err)
	}
	if inv.Customer.Name == "" {
		return fmt.Errorf("%w: customer name is required", domain.ErrInvalidInput)
	}
	// Customer business ID is optional, but when present it must check out.
	if inv.Customer.BusinessID != "" {
		if err := identity.Validate(inv.Customer.BusinessID); err != nil {
			return fmt.Errorf("customer: %w", err)
		}
	}

	if _, err := currency.ParseISO(inv.Currency); err != nil {
		return fmt.Errorf("%w: currency %q is not ISO 4217", domain.ErrInvalidInput, inv.Currency)
	}

	if len(inv.Items) == 0 {
		return fmt.Errorf("%w: invoice has no line items", domain.ErrInvalidInput)
	}

	subtotal := decimal.Zero
	totalVAT := decimal.Zero
	for i := range inv.Items {
		item := &inv.Items[i]
		if err := p.validateItem(i, item); err != nil {
			return err
		}
		subtotal = subtotal.Add(item.LineTotal)
		totalVAT = totalVAT.Add(item.VATAmount)
	}

	if !inv.Subtotal.Equal(subtotal) {
		return fmt.Errorf("%w: subtotal %s, line totals sum to %s", domain.ErrUnreconciledTotals, inv.Subtotal, subtotal)
	}
	if !inv.TotalVAT.Equal(totalVAT) {
		return fmt.Errorf("%w: total VAT %s, line VAT sums to %s", domain.ErrUnreconciledTotals, inv.TotalVAT, totalVAT)
	}
	if !inv.GrandTotal.Equal(inv.Subtotal.Add(inv.TotalVAT)) {
		return fmt.Errorf("%w: grand total %s != subtotal %s + VAT %s", domain.ErrUnreconciledTotals, inv.GrandTotal, inv.Subtotal, inv.TotalVAT)
	}
	return nil
}

func (p *Pipeline) validateItem(i int, item *entity.LineItem) error {
	if item.Description == "" {
		return fmt.Errorf("%w: item %d has no description", domain.ErrInvalidInput, i+1)
	}
	if !item.Quantity.IsPositive() {
		return fmt.Errorf("%w: item %d quantity must be positive", domain.ErrInvalidInput, i+1)
	}
	if item.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: item %d unit price must not be negative", domain.ErrInvalidInput, i+1)
	}
	if item.VATRate.IsNegative() || item.VATRate.GreaterThan(hundred) {
		return fmt.Errorf("%w: item %d VAT rate must be within 0..100", domain.ErrInvalidInput, i+1)
	}

	// Declared values are never silently rounded: excess precision rejects.
	if err := numeric.RequireScale(item.Quantity, p.quantityScale); err != nil {
		return fmt.Errorf("item %d quantity: %w", i+1, err)
	}
	if err := numeric.RequireScale(item.UnitPrice, numeric.AmountScale); err != nil {
		return fmt.Errorf("item %d unit price: %w", i+1, err)
	}
	if err := numeric.RequireScale(item.VATRate, numeric.AmountScale); err != nil {
		return fmt.Errorf("item %d VAT rate: %w", i+1, err)
	}

	// Line total = round(quantity × unit price, 2) under round-half-up,
	// the single rounding rule applied everywhere.
	lineTotal := numeric.Normalize(item.Quantity.Mul(item.UnitPrice), numeric.AmountScale)
	if !item.LineTotal.Equal(lineTotal) {
		return fmt.Errorf("%w: item %d line total %s, expected %s", domain.ErrUnreconciledTotals, i+1, item.LineTotal, lineTotal)
	}
	vatAmount := numeric.Normalize(lineTotal.Mul(item.VATRate).Div(hundred), numeric.AmountScale)
	if !item.VATAmount.Equal(vatAmount) {
		return fmt.Errorf("%w: item %d VAT amount %s, expected %s", domain.ErrUnreconciledTotals, i+1, item.VATAmount, vatAmount)
	}
	if !item.TotalWithVAT.Equal(lineTotal.Add(vatAmount)) {
		return fmt.Errorf("%w: item %d total with VAT %s, expected %s", domain.ErrUnreconciledTotals, i+1, item.TotalWithVAT, lineTotal.Add(vatAmount))
	}
	return nil
}
