package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalinvoice/signer-api/internal/domain"
)

const sampleSubmission = `{
  "invoice_number": "INV-2026-001",
  "issue_date": "2026-03-15",
  "supplier": {
    "name": "Acme Supplies Ltd",
    "business_id": "123456782",
    "street": "1 Rothschild Blvd",
    "city": "Tel Aviv"
  },
  "customer": {
    "name": "Beta Trading",
    "street": "5 Jaffa Rd",
    "city": "Jerusalem"
  },
  "items": [
    {
      "description": "Widget",
      "quantity": "2",
      "unit_price": "50.00",
      "vat_rate": "17.00",
      "line_total": "100.00",
      "vat_amount": "17.00",
      "total_with_vat": "117.00"
    }
  ],
  "subtotal_excluding_vat": "100.00",
  "total_vat": "17.00",
  "total_including_vat": "117.00"
}`

func TestToEntity(t *testing.T) {
	var req SubmitInvoiceRequest
	require.NoError(t, json.Unmarshal([]byte(sampleSubmission), &req))

	inv, err := req.ToEntity()
	require.NoError(t, err)

	assert.Equal(t, "INV-2026-001", inv.InvoiceNumber)
	assert.Equal(t, "2026-03-15", inv.IssueDate.Format("2006-01-02"))
	assert.Equal(t, "ILS", inv.Currency, "currency defaults when omitted")
	assert.Equal(t, "Israel", inv.Supplier.Address.Country, "country defaults when omitted")
	assert.Equal(t, "123456782", inv.Supplier.BusinessID)
	assert.Empty(t, inv.Customer.BusinessID)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "117.00", inv.Items[0].TotalWithVAT.StringFixed(2))
	assert.Equal(t, "117.00", inv.GrandTotal.StringFixed(2))
}

func TestToEntity_NormalizesBusinessIDs(t *testing.T) {
	var req SubmitInvoiceRequest
	require.NoError(t, json.Unmarshal([]byte(sampleSubmission), &req))
	req.Supplier.BusinessID = "12-345-6782"
	req.Customer.BusinessID = "51 234 5679"

	inv, err := req.ToEntity()
	require.NoError(t, err)
	assert.Equal(t, "123456782", inv.Supplier.BusinessID, "formatting never reaches the domain")
	assert.Equal(t, "512345679", inv.Customer.BusinessID)
}

func TestToEntity_BadDate(t *testing.T) {
	req := SubmitInvoiceRequest{InvoiceNumber: "INV-1", IssueDate: "15/03/2026"}
	_, err := req.ToEntity()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
