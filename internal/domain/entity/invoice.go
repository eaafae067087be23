package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice lifecycle states. Transitions are one-directional; no state is
// re-entered. REJECTED is terminal from RECEIVED/VALIDATED, SIGNING_FAILED
// from CANONICALIZED.
const (
	StatusReceived      = "RECEIVED"
	StatusValidated     = "VALIDATED"
	StatusCanonicalized = "CANONICALIZED"
	StatusSigned        = "SIGNED"
	StatusDelivered     = "DELIVERED"
	StatusRejected      = "REJECTED"
	StatusSigningFailed = "SIGNING_FAILED"
)

// Address of a party. Country defaults to Israel at the submission boundary.
type Address struct {
	Street     string
	City       string
	PostalCode string // optional
	Country    string
}

// Party is one side of an invoice (supplier or customer).
// BusinessID is the 9-digit Israeli business identifier; it is mandatory for
// the supplier and optional for the customer.
type Party struct {
	Name       string
	BusinessID string
	Address    Address
	Email      string // optional
	Phone      string // optional
}

// LineItem is a single invoice line. Order of line items is semantically
// significant and enters the canonical bytes exactly as submitted.
type LineItem struct {
	Description  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	VATRate      decimal.Decimal // percent, e.g. 17.00
	LineTotal    decimal.Decimal // round(quantity × unit price, 2), half-up
	VATAmount    decimal.Decimal // round(line total × rate / 100, 2), half-up
	TotalWithVAT decimal.Decimal
}

// Invoice is the validated invoice structure handed to the signing pipeline.
// It is frozen the moment it enters the pipeline; a correction is a new
// Invoice with a new number carrying SupersedesID, never an in-place edit.
type Invoice struct {
	ID               string
	InvoiceNumber    string // unique per supplier
	IssueDate        time.Time
	Supplier         Party
	Customer         Party
	Items            []LineItem
	Subtotal         decimal.Decimal // sum of line totals, 2 places
	TotalVAT         decimal.Decimal
	GrandTotal       decimal.Decimal // Subtotal + TotalVAT
	Currency         string          // ISO 4217, e.g. "ILS"
	AllocationNumber string          // optional Tax Authority allocation number
	SupersedesID     string          // optional: ID of the invoice this one corrects
	CreatedAt        time.Time
}
