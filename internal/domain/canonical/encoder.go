// Package canonical maps a validated invoice to its unique deterministic byte
// encoding, the sole input to signing. The layout is length-prefixed: a fixed
// header, then every field as a big-endian uint32 length followed by UTF-8
// bytes, in a fixed enumerated order. No delimiter can collide with content,
// and the bytes are a pure function of the invoice's field values: identical
// field values produce identical bytes on any host, at any time.
//
// This encoding is never a display format. JSON or XML renders of the same
// invoice are presentation-only; cosmetic changes to them cannot invalidate a
// signature.
package canonical

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/digitalinvoice/signer-api/internal/domain"
	"github.com/digitalinvoice/signer-api/internal/domain/entity"
	"github.com/digitalinvoice/signer-api/internal/domain/numeric"
)

const (
	// Magic identifies the canonical invoice format ("IL").
	Magic uint16 = 0x494C
	// FormatVersion is bumped only for incompatible layout changes; a bump
	// invalidates no existing signature because stored artifacts keep their
	// original canonical bytes.
	FormatVersion byte = 0x01

	reservedByte byte = 0x00

	// DateLayout is the fixed issue-date rendering.
	DateLayout = "2006-01-02"

	// maxFieldLen caps a single field at 64 KiB. The length prefix could
	// carry more, but nothing in an invoice legitimately does.
	maxFieldLen = 1 << 16
	// maxItems matches the uint16 item-count field.
	maxItems = 1<<16 - 1
)

// Encoder serializes invoices. The quantity scale is fixed per encoder so
// that one signing context always formats quantities identically.
type Encoder struct {
	quantityScale int32
}

// NewEncoder creates an encoder. scale <= 0 selects the default quantity scale.
func NewEncoder(quantityScale int32) *Encoder {
	if quantityScale <= 0 {
		quantityScale = numeric.DefaultQuantityScale
	}
	return &Encoder{quantityScale: quantityScale}
}

// QuantityScale returns the fixed quantity scale of this encoder.
func (e *Encoder) QuantityScale() int32 { return e.quantityScale }

// Encode serializes the invoice. Field order: header fields, supplier,
// customer, each line item in submitted order, computed totals. Returns
// ErrInvalidAmount when a value exceeds its declared scale and
// ErrUnsupportedValue when a field cannot be represented in the format.
func (e *Encoder) Encode(inv *entity.Invoice) (entity.CanonicalDocument, error) {
	if inv == nil {
		return entity.CanonicalDocument{}, fmt.Errorf("%w: nil invoice", domain.ErrUnsupportedValue)
	}

	w := &docWriter{buf: &bytes.Buffer{}, quantityScale: e.quantityScale}

	// Header
	_ = binary.Write(w.buf, binary.BigEndian, Magic)
	w.buf.WriteByte(FormatVersion)
	w.buf.WriteByte(reservedByte)

	w.writeString(inv.InvoiceNumber)
	w.writeString(inv.IssueDate.Format(DateLayout))
	w.writeString(inv.Currency)
	w.writeOptional(inv.AllocationNumber)
	w.writeOptional(inv.SupersedesID)

	w.writeParty(&inv.Supplier)
	w.writeParty(&inv.Customer)

	if len(inv.Items) > maxItems {
		return entity.CanonicalDocument{}, fmt.Errorf("%w: %d line items exceed format limit", domain.ErrUnsupportedValue, len(inv.Items))
	}
	_ = binary.Write(w.buf, binary.BigEndian, uint16(len(inv.Items)))
	for i := range inv.Items {
		w.writeItem(&inv.Items[i])
	}

	w.writeAmount(inv.Subtotal)
	w.writeAmount(inv.TotalVAT)
	w.writeAmount(inv.GrandTotal)

	if w.err != nil {
		return entity.CanonicalDocument{}, w.err
	}
	return entity.NewCanonicalDocument(w.buf.Bytes()), nil
}

// EncodeDate is a convenience for collaborators that must render the issue
// date exactly as the canonical form does.
func EncodeDate(t time.Time) string { return t.Format(DateLayout) }

// docWriter accumulates the encoding and latches the first error.
type docWriter struct {
	buf           *bytes.Buffer
	quantityScale int32
	err           error
}

func (w *docWriter) writeString(s string) {
	if w.err != nil {
		return
	}
	b := []byte(s)
	if len(b) > maxFieldLen {
		w.err = fmt.Errorf("%w: field of %d bytes exceeds format limit", domain.ErrUnsupportedValue, len(b))
		return
	}
	_ = binary.Write(w.buf, binary.BigEndian, uint32(len(b)))
	w.buf.Write(b)
}

// writeOptional tags presence with one byte so an absent field can never be
// confused with an empty one.
func (w *docWriter) writeOptional(s string) {
	if w.err != nil {
		return
	}
	if s == "" {
		w.buf.WriteByte(0x00)
		return
	}
	w.buf.WriteByte(0x01)
	w.writeString(s)
}

func (w *docWriter) writeAmount(d decimal.Decimal) {
	if w.err != nil {
		return
	}
	if err := numeric.RequireScale(d, numeric.AmountScale); err != nil {
		w.err = err
		return
	}
	w.writeString(numeric.FormatAmount(d))
}

func (w *docWriter) writeQuantity(d decimal.Decimal) {
	if w.err != nil {
		return
	}
	if err := numeric.RequireScale(d, w.quantityScale); err != nil {
		w.err = err
		return
	}
	w.writeString(numeric.FormatQuantity(d, w.quantityScale))
}

func (w *docWriter) writeParty(p *entity.Party) {
	w.writeString(p.Name)
	w.writeOptional(p.BusinessID)
	w.writeString(p.Address.Street)
	w.writeString(p.Address.City)
	w.writeOptional(p.Address.PostalCode)
	w.writeString(p.Address.Country)
	w.writeOptional(p.Email)
	w.writeOptional(p.Phone)
}

func (w *docWriter) writeItem(it *entity.LineItem) {
	w.writeString(it.Description)
	w.writeQuantity(it.Quantity)
	w.writeAmount(it.UnitPrice)
	w.writeAmount(it.VATRate)
	w.writeAmount(it.LineTotal)
	w.writeAmount(it.VATAmount)
	w.writeAmount(it.TotalWithVAT)
}
