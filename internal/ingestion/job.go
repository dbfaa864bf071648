// Package ingestion tracks uploaded invoice files from receipt through
// duplicate resolution to registered invoices. An IngestionJob records the
// lifecycle of one upload; the invoice it produces (if any) lives in the
// invoices package.
package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// Ingestion job statuses.
const (
	StatusPending           = "pending"
	StatusProcessing        = "processing"
	StatusCompleted         = "completed"
	StatusFailed            = "failed"
	StatusDuplicateDetected = "duplicate_detected"
	StatusRequireReview     = "require_review"
)

// Upload sources.
const (
	SourceAPI   = "api"
	SourceBatch = "batch"
	SourceEmail = "email"
)

// IngestionJob records one upload attempt. DuplicateOf and Resolution are set
// when the deduplication resolver matched an existing invoice; InvoiceID is
// set once the upload produced (or merged into) an invoice.
type IngestionJob struct {
	ID          uuid.UUID  `json:"id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	PageCount   int        `json:"page_count"`
	Fingerprint string     `json:"fingerprint"`
	StorageKey  *string    `json:"storage_key,omitempty"`
	Source      string     `json:"source"`
	Priority    int        `json:"priority"`
	Status      string     `json:"status"`
	InvoiceID   *uuid.UUID `json:"invoice_id,omitempty"`
	DuplicateOf *uuid.UUID `json:"duplicate_of,omitempty"`
	Resolution  *string    `json:"resolution,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// UploadCommand carries a file received for ingestion.
type UploadCommand struct {
	Filename    string
	ContentType string
	Data        []byte
	Source      string
	Priority    int
}

// ResolveCommand settles a job held in require_review: proceed registers the
// invoice despite the duplicate match, ignore discards the upload.
type ResolveCommand struct {
	ID         uuid.UUID
	Proceed    bool
	ResolvedBy string
}
