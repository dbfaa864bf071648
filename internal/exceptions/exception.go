package exceptions

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status of an exception record.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Exception records a single validation or business-rule failure against an
// invoice. Exceptions are never deleted; resolution is an explicit operation
// that records who resolved it and why.
type Exception struct {
	ID         uuid.UUID       `json:"id"`
	InvoiceID  uuid.UUID       `json:"invoice_id"`
	Reason     ReasonCode      `json:"reason"`
	Severity   Severity        `json:"severity"`
	Status     string          `json:"status"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	DedupKey   string          `json:"dedup_key"`
	ResolvedBy *string         `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	Notes      *string         `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CreateCommand carries the data needed to record a new exception.
// DedupKey makes creation idempotent: re-running a stage that raises the same
// failure (same invoice, reason, and key) records nothing new.
type CreateCommand struct {
	InvoiceID uuid.UUID
	Reason    ReasonCode
	Detail    json.RawMessage
	DedupKey  string
}

// ResolveCommand carries the data needed to resolve an open exception.
type ResolveCommand struct {
	ID         uuid.UUID
	ResolvedBy string
	Notes      string
}
