package deadletter

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/pagination"
)

// Enqueuer schedules a redrive task for a dead letter. The task queue
// satisfies this without deadletter depending on it.
type Enqueuer interface {
	EnqueueRedrive(ctx context.Context, deadLetterID uuid.UUID, priority int) error
}

// System defines the public contract for dead letter operations.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Entry], error)

	Find(ctx context.Context, id uuid.UUID) (*Entry, error)

	// Capture records a task whose retries are exhausted. Re-capturing the
	// same task updates the existing entry; once the redrive budget is spent
	// the entry is flagged for manual intervention.
	Capture(ctx context.Context, cmd CaptureCommand) (*Entry, error)

	// Redrive appends to the entry's history, marks it redriving, and
	// schedules the captured task to run again.
	Redrive(ctx context.Context, id uuid.UUID, actor string) (*Entry, error)

	// Settle records the outcome of a redrive: completed on success, pending
	// again on failure (or failed_permanently once flagged manual).
	Settle(ctx context.Context, id uuid.UUID, succeeded bool, detail string) (*Entry, error)

	// Archive removes an entry from the active queue without redriving it.
	Archive(ctx context.Context, id uuid.UUID, actor string) (*Entry, error)
}
