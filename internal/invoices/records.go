package invoices

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExtractionResult is one extraction attempt against an invoice. Results are
// immutable once written; later attempts supersede earlier ones without
// overwriting them.
type ExtractionResult struct {
	ID               uuid.UUID  `json:"id"`
	InvoiceID        uuid.UUID  `json:"invoice_id"`
	Fields           FieldSet   `json:"fields"`
	LineItems        []LineItem `json:"line_items"`
	ExtractorVersion string     `json:"extractor_version"`
	DurationMS       int64      `json:"duration_ms"`
	CreatedAt        time.Time  `json:"created_at"`
}

// CheckResult is one entry in a validation pass's ordered check list.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ValidationResult is one validation pass against an invoice. Immutable once
// written; identical inputs and rules version produce byte-identical Checks.
type ValidationResult struct {
	ID           uuid.UUID       `json:"id"`
	InvoiceID    uuid.UUID       `json:"invoice_id"`
	Passed       bool            `json:"passed"`
	Checks       json.RawMessage `json:"checks"`
	RulesVersion string          `json:"rules_version"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Export statuses.
const (
	ExportPrepared = "prepared"
	ExportSent     = "sent"
	ExportFailed   = "failed"
)

// StagedExport is one export attempt for an invoice. Immutable except for
// status transitions; IdempotencyKey matches the key sent to the export
// destination so retries never double-post.
type StagedExport struct {
	ID             uuid.UUID       `json:"id"`
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	Payload        json.RawMessage `json:"payload"`
	Format         string          `json:"format"`
	Status         string          `json:"status"`
	IdempotencyKey string          `json:"idempotency_key"`
	DestinationID  *string         `json:"destination_id,omitempty"`
	ErrorDetail    *string         `json:"error_detail,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
