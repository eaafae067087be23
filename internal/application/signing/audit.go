package signing

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one pipeline operation. Entries never contain key
// material or canonical bytes, only the digest.
type AuditEntry struct {
	ID            string
	Operation     string
	InvoiceNumber string
	DigestHex     string
	At            time.Time
	Metadata      map[string]string
}

// AuditTrail is a bounded in-memory audit log of pipeline operations. The
// oldest entries are dropped once the bound is reached; durable audit storage
// is a collaborator concern.
type AuditTrail struct {
	mu      sync.Mutex
	entries []AuditEntry
	max     int
}

// NewAuditTrail creates a trail bounded to max entries (<= 0 selects 1024).
func NewAuditTrail(max int) *AuditTrail {
	if max <= 0 {
		max = 1024
	}
	return &AuditTrail{max: max}
}

// Record appends an entry.
func (t *AuditTrail) Record(operation, invoiceNumber, digestHex string, metadata map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, AuditEntry{
		ID:            uuid.New().String(),
		Operation:     operation,
		InvoiceNumber: invoiceNumber,
		DigestHex:     digestHex,
		At:            time.Now().UTC(),
		Metadata:      metadata,
	})
	if len(t.entries) > t.max {
		t.entries = t.entries[len(t.entries)-t.max:]
	}
}

// Entries returns a copy of the most recent entries, newest last. limit <= 0
// returns everything retained.
func (t *AuditTrail) Entries(limit int) []AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]AuditEntry, n)
	copy(out, t.entries[len(t.entries)-n:])
	return out
}
