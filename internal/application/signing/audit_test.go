package signing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditTrail_RecordAndEntries(t *testing.T) {
	trail := NewAuditTrail(0)

	trail.Record("invoice_signed", "INV-001", "abcd", map[string]string{"artifact_id": "a1"})
	trail.Record("artifact_delivered", "", "", map[string]string{"artifact_id": "a1"})

	entries := trail.Entries(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "invoice_signed", entries[0].Operation)
	assert.Equal(t, "INV-001", entries[0].InvoiceNumber)
	assert.Equal(t, "abcd", entries[0].DigestHex)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].At.IsZero())
	assert.Equal(t, "artifact_delivered", entries[1].Operation)

	limited := trail.Entries(1)
	require.Len(t, limited, 1)
	assert.Equal(t, "artifact_delivered", limited[0].Operation, "limit keeps the most recent entries")
}

func TestAuditTrail_Bounded(t *testing.T) {
	trail := NewAuditTrail(3)
	for i := 0; i < 10; i++ {
		trail.Record("invoice_signed", fmt.Sprintf("INV-%03d", i), "", nil)
	}
	entries := trail.Entries(0)
	require.Len(t, entries, 3)
	assert.Equal(t, "INV-007", entries[0].InvoiceNumber, "oldest entries are dropped first")
	assert.Equal(t, "INV-009", entries[2].InvoiceNumber)
}
