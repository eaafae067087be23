package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/digitalinvoice/signer-api/internal/domain"
	"github.com/digitalinvoice/signer-api/internal/domain/entity"
	"github.com/digitalinvoice/signer-api/internal/domain/identity"
)

// SubmitInvoiceRequest is the JSON shape handed over by the upstream
// extraction/parsing layer. Amounts are decimal strings or JSON numbers with
// exact decimal text; binary floats never enter the pipeline.
type SubmitInvoiceRequest struct {
	InvoiceNumber    string           `json:"invoice_number"`
	IssueDate        string           `json:"issue_date"` // YYYY-MM-DD
	Supplier         PartyDTO         `json:"supplier"`
	Customer         PartyDTO         `json:"customer"`
	Items            []LineItemDTO    `json:"items"`
	Subtotal         decimal.Decimal  `json:"subtotal_excluding_vat"`
	TotalVAT         decimal.Decimal  `json:"total_vat"`
	GrandTotal       decimal.Decimal  `json:"total_including_vat"`
	Currency         string           `json:"currency"`
	AllocationNumber string           `json:"allocation_number,omitempty"`
	SupersedesID     string           `json:"supersedes_id,omitempty"`
}

// PartyDTO mirrors entity.Party.
type PartyDTO struct {
	Name       string `json:"name"`
	BusinessID string `json:"business_id,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// LineItemDTO mirrors entity.LineItem.
type LineItemDTO struct {
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	VATRate      decimal.Decimal `json:"vat_rate"`
	LineTotal    decimal.Decimal `json:"line_total"`
	VATAmount    decimal.Decimal `json:"vat_amount"`
	TotalWithVAT decimal.Decimal `json:"total_with_vat"`
}

// ToEntity maps the submission to the domain invoice. Business identifiers
// are stripped of formatting here so every downstream view (canonical bytes,
// stored rows, renders) sees the same form. Structural and checksum
// validation happens later in the pipeline; this only parses.
func (r *SubmitInvoiceRequest) ToEntity() (*entity.Invoice, error) {
	issueDate, err := time.Parse("2006-01-02", r.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("%w: issue_date %q, expected YYYY-MM-DD", domain.ErrInvalidInput, r.IssueDate)
	}
	inv := &entity.Invoice{
		InvoiceNumber:    r.InvoiceNumber,
		IssueDate:        issueDate,
		Supplier:         r.Supplier.toEntity(),
		Customer:         r.Customer.toEntity(),
		Items:            make([]entity.LineItem, len(r.Items)),
		Subtotal:         r.Subtotal,
		TotalVAT:         r.TotalVAT,
		GrandTotal:       r.GrandTotal,
		Currency:         r.Currency,
		AllocationNumber: r.AllocationNumber,
		SupersedesID:     r.SupersedesID,
	}
	if inv.Currency == "" {
		inv.Currency = "ILS"
	}
	for i, it := range r.Items {
		inv.Items[i] = entity.LineItem{
			Description:  it.Description,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			VATRate:      it.VATRate,
			LineTotal:    it.LineTotal,
			VATAmount:    it.VATAmount,
			TotalWithVAT: it.TotalWithVAT,
		}
	}
	return inv, nil
}

func (p PartyDTO) toEntity() entity.Party {
	country := p.Country
	if country == "" {
		country = "Israel"
	}
	return entity.Party{
		Name:       p.Name,
		BusinessID: identity.Normalize(p.BusinessID),
		Address: entity.Address{
			Street:     p.Street,
			City:       p.City,
			PostalCode: p.PostalCode,
			Country:    country,
		},
		Email: p.Email,
		Phone: p.Phone,
	}
}
