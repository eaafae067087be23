package render

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalinvoice/signer-api/internal/domain/entity"
)

func renderableInvoice() (*entity.Invoice, *entity.SignedInvoice) {
	d := decimal.RequireFromString
	inv := &entity.Invoice{
		ID:            "inv-1",
		InvoiceNumber: "INV-2026-001",
		IssueDate:     time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Supplier: entity.Party{
			Name:       "Acme Supplies Ltd",
			BusinessID: "123456782",
			Address:    entity.Address{Street: "1 Rothschild Blvd", City: "Tel Aviv", Country: "Israel"},
		},
		Customer: entity.Party{
			Name:    "Beta Trading",
			Address: entity.Address{Street: "5 Jaffa Rd", City: "Jerusalem", Country: "Israel"},
		},
		Items: []entity.LineItem{{
			Description:  "Widget",
			Quantity:     d("2"),
			UnitPrice:    d("50.00"),
			VATRate:      d("17.00"),
			LineTotal:    d("100.00"),
			VATAmount:    d("17.00"),
			TotalWithVAT: d("117.00"),
		}},
		Subtotal:   d("100.00"),
		TotalVAT:   d("17.00"),
		GrandTotal: d("117.00"),
		Currency:   "ILS",
	}
	doc := entity.NewCanonicalDocument([]byte{0x49, 0x4C, 0x01, 0x00})
	signed := entity.NewSignedInvoice(
		inv.ID, inv.InvoiceNumber, doc,
		[]byte{0xAB, 0xCD}, []byte("sig"),
		"cert-fp", "v1",
		time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	)
	return inv, signed
}

func TestRender(t *testing.T) {
	inv, signed := renderableInvoice()

	out, err := NewXMLRenderer(3).Render(inv, signed)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out))

	root := doc.SelectElement("DigitalInvoice")
	require.NotNil(t, root)
	assert.Equal(t, "digital_invoice_israel", root.SelectAttrValue("format", ""))

	assert.Equal(t, "INV-2026-001", root.SelectElement("InvoiceNumber").Text())
	assert.Equal(t, "2026-03-15", root.SelectElement("IssueDate").Text())
	assert.Equal(t, "ILS", root.SelectElement("Currency").Text())
	assert.Nil(t, root.SelectElement("AllocationNumber"), "absent optionals are omitted")

	supplier := root.SelectElement("Supplier")
	require.NotNil(t, supplier)
	assert.Equal(t, "123456782", supplier.SelectElement("BusinessID").Text())

	item := root.SelectElement("Items").SelectElement("Item")
	require.NotNil(t, item)
	assert.Equal(t, "1", item.SelectAttrValue("position", ""))
	assert.Equal(t, "2.000", item.SelectElement("Quantity").Text())
	assert.Equal(t, "117.00", item.SelectElement("TotalWithVAT").Text())

	sig := root.SelectElement("SignatureInformation")
	require.NotNil(t, sig)
	assert.Equal(t, "SHA-256", sig.SelectElement("DigestAlgorithm").Text())
	assert.Equal(t, hex.EncodeToString(signed.Digest()), sig.SelectElement("DigestValue").Text())
	assert.Equal(t, "CMS-detached", sig.SelectElement("SignatureFormat").Text())
	assert.Equal(t, "cert-fp", sig.SelectElement("CertificateFingerprint").Text())
	assert.Equal(t, "2026-03-15T12:00:00Z", sig.SelectElement("SigningTime").Text())
}

func TestRender_RequiresInputs(t *testing.T) {
	inv, signed := renderableInvoice()
	_, err := NewXMLRenderer(3).Render(nil, signed)
	assert.Error(t, err)
	_, err = NewXMLRenderer(3).Render(inv, nil)
	assert.Error(t, err)
}
