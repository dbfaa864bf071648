package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/pagination"
)

// System defines the public contract for invoice domain operations.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Invoice], error)

	Find(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*Invoice, error)
	Create(ctx context.Context, cmd CreateCommand) (*Invoice, error)

	// Archive marks an invoice superseded by a duplicate resolution. Archiving
	// an already archived invoice is a no-op.
	Archive(ctx context.Context, id uuid.UUID) error

	// Claim marks the invoice as processing by the given worker until the TTL
	// elapses. Returns ErrClaimed while another worker holds a live claim.
	Claim(ctx context.Context, id uuid.UUID, worker string, ttl time.Duration) (*Invoice, error)

	// Release drops a worker's claim without committing a transition.
	Release(ctx context.Context, id uuid.UUID, worker string) error

	// CommitTransition applies a stage outcome under an optimistic version
	// check and releases the claim. Returns ErrVersionConflict when the
	// invoice changed since it was claimed.
	CommitTransition(ctx context.Context, cmd TransitionCommand) (*Invoice, error)

	RecordExtraction(ctx context.Context, result *ExtractionResult) (*ExtractionResult, error)
	LatestExtraction(ctx context.Context, invoiceID uuid.UUID) (*ExtractionResult, error)

	RecordValidation(ctx context.Context, result *ValidationResult) (*ValidationResult, error)
	LatestValidation(ctx context.Context, invoiceID uuid.UUID) (*ValidationResult, error)

	CreateExport(ctx context.Context, export *StagedExport) (*StagedExport, error)
	FindExportByKey(ctx context.Context, idempotencyKey string) (*StagedExport, error)
	SettleExport(ctx context.Context, id uuid.UUID, status string, destinationID, errorDetail *string) error
	ExportsFor(ctx context.Context, invoiceID uuid.UUID) ([]StagedExport, error)

	// PendingReviews lists invoices suspended in human review.
	PendingReviews(ctx context.Context) ([]ReviewSummary, error)

	// VendorKnown reports whether any other invoice already references this
	// vendor name, which the validation battery treats as vendor resolution.
	VendorKnown(ctx context.Context, vendorName string, exclude uuid.UUID) (bool, error)

	// ReferenceMatch returns an existing invoice carrying the same vendor and
	// invoice number, or nil when none exists.
	ReferenceMatch(ctx context.Context, vendorName, invoiceNumber string, exclude uuid.UUID) (*ReferenceHit, error)
}

// ReferenceHit identifies an existing invoice sharing a business reference.
type ReferenceHit struct {
	InvoiceID  uuid.UUID `json:"invoice_id"`
	TotalValue string    `json:"total_value"`
	CreatedAt  time.Time `json:"created_at"`
}
