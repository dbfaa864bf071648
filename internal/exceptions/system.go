package exceptions

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/pagination"
)

// System defines the public contract for exception domain operations.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Exception], error)

	Find(ctx context.Context, id uuid.UUID) (*Exception, error)
	ForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Exception, error)
	OpenCount(ctx context.Context, invoiceID uuid.UUID) (int, error)
	Create(ctx context.Context, cmd CreateCommand) (*Exception, error)
	Resolve(ctx context.Context, cmd ResolveCommand) (*Exception, error)
}
