// Package render produces a display-oriented XML export of a signed invoice
// for delivery collaborators. The export is presentation only: it is never an
// input to signing, so cosmetic changes to it can never invalidate a
// signature. Tamper checks always go through the canonical bytes.
package render

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/beevik/etree"

	"github.com/digitalinvoice/signer-api/internal/domain/canonical"
	"github.com/digitalinvoice/signer-api/internal/domain/entity"
	"github.com/digitalinvoice/signer-api/internal/domain/numeric"
)

// XMLRenderer renders invoices with their signature metadata.
type XMLRenderer struct {
	quantityScale int32
}

// NewXMLRenderer creates a renderer. The quantity scale should match the
// signing pipeline's so displayed quantities read like the signed ones.
func NewXMLRenderer(quantityScale int32) *XMLRenderer {
	if quantityScale <= 0 {
		quantityScale = numeric.DefaultQuantityScale
	}
	return &XMLRenderer{quantityScale: quantityScale}
}

// Render produces the XML document for an invoice and its artifact.
func (r *XMLRenderer) Render(inv *entity.Invoice, signed *entity.SignedInvoice) ([]byte, error) {
	if inv == nil || signed == nil {
		return nil, fmt.Errorf("render: invoice and signed artifact are required")
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("DigitalInvoice")
	root.CreateAttr("format", "digital_invoice_israel")
	root.CreateAttr("version", "1.0")

	root.CreateElement("InvoiceNumber").SetText(inv.InvoiceNumber)
	root.CreateElement("IssueDate").SetText(canonical.EncodeDate(inv.IssueDate))
	root.CreateElement("Currency").SetText(inv.Currency)
	if inv.AllocationNumber != "" {
		root.CreateElement("AllocationNumber").SetText(inv.AllocationNumber)
	}
	if inv.SupersedesID != "" {
		root.CreateElement("Supersedes").SetText(inv.SupersedesID)
	}

	r.renderParty(root.CreateElement("Supplier"), &inv.Supplier)
	r.renderParty(root.CreateElement("Customer"), &inv.Customer)

	items := root.CreateElement("Items")
	for i := range inv.Items {
		it := &inv.Items[i]
		item := items.CreateElement("Item")
		item.CreateAttr("position", fmt.Sprintf("%d", i+1))
		item.CreateElement("Description").SetText(it.Description)
		item.CreateElement("Quantity").SetText(numeric.FormatQuantity(it.Quantity, r.quantityScale))
		item.CreateElement("UnitPrice").SetText(numeric.FormatAmount(it.UnitPrice))
		item.CreateElement("VATRate").SetText(numeric.FormatAmount(it.VATRate))
		item.CreateElement("LineTotal").SetText(numeric.FormatAmount(it.LineTotal))
		item.CreateElement("VATAmount").SetText(numeric.FormatAmount(it.VATAmount))
		item.CreateElement("TotalWithVAT").SetText(numeric.FormatAmount(it.TotalWithVAT))
	}

	totals := root.CreateElement("Totals")
	totals.CreateElement("Subtotal").SetText(numeric.FormatAmount(inv.Subtotal))
	totals.CreateElement("TotalVAT").SetText(numeric.FormatAmount(inv.TotalVAT))
	totals.CreateElement("GrandTotal").SetText(numeric.FormatAmount(inv.GrandTotal))

	sig := root.CreateElement("SignatureInformation")
	sig.CreateElement("DigestAlgorithm").SetText("SHA-256")
	sig.CreateElement("DigestValue").SetText(hex.EncodeToString(signed.Digest()))
	sig.CreateElement("SignatureFormat").SetText("CMS-detached")
	sig.CreateElement("SignatureValue").SetText(base64.StdEncoding.EncodeToString(signed.Signature()))
	sig.CreateElement("CertificateFingerprint").SetText(signed.CertFingerprint())
	sig.CreateElement("SigningTime").SetText(signed.SignedAt().UTC().Format(time.RFC3339))

	doc.Indent(2)
	return doc.WriteToBytes()
}

func (r *XMLRenderer) renderParty(el *etree.Element, p *entity.Party) {
	el.CreateElement("Name").SetText(p.Name)
	if p.BusinessID != "" {
		el.CreateElement("BusinessID").SetText(p.BusinessID)
	}
	addr := el.CreateElement("Address")
	addr.CreateElement("Street").SetText(p.Address.Street)
	addr.CreateElement("City").SetText(p.Address.City)
	if p.Address.PostalCode != "" {
		addr.CreateElement("PostalCode").SetText(p.Address.PostalCode)
	}
	addr.CreateElement("Country").SetText(p.Address.Country)
	if p.Email != "" {
		el.CreateElement("Email").SetText(p.Email)
	}
	if p.Phone != "" {
		el.CreateElement("Phone").SetText(p.Phone)
	}
}
