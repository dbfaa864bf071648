package ingestion

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/pagination"
)

// Enqueuer schedules workflow processing for a newly registered invoice. The
// task queue satisfies this without ingestion depending on it.
type Enqueuer interface {
	EnqueueProcessing(ctx context.Context, invoiceID uuid.UUID, priority int) error
}

// System defines the public contract for ingestion operations.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[IngestionJob], error)

	Find(ctx context.Context, id uuid.UUID) (*IngestionJob, error)

	// Upload ingests a file: it fingerprints the bytes, applies the
	// deduplication policy, stores the blob, registers the invoice, and
	// schedules processing. The returned job records how the upload resolved.
	Upload(ctx context.Context, cmd UploadCommand) (*IngestionJob, error)

	// Resolve settles a job held in require_review after a duplicate match.
	Resolve(ctx context.Context, cmd ResolveCommand) (*IngestionJob, error)
}
