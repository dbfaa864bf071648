package exceptions

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates an exception repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "exceptions"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Exception], error) {
	page.Normalize(r.pagination)

	qb := query.NewBuilder(projection, defaultSort)
	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count exceptions: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanException)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Exception, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	e, err := repository.QueryOne(ctx, r.db, q, args, scanException)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &e, nil
}

func (r *repo) ForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Exception, error) {
	qb := query.NewBuilder(projection, query.SortField{Field: "CreatedAt"})
	qb.WhereEquals("InvoiceID", invoiceID)
	q, args := qb.Build()

	items, err := repository.QueryMany(ctx, r.db, q, args, scanException)
	if err != nil {
		return nil, fmt.Errorf("query invoice exceptions: %w", err)
	}
	return items, nil
}

func (r *repo) OpenCount(ctx context.Context, invoiceID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(
		ctx,
		"SELECT COUNT(*) FROM exceptions WHERE invoice_id = $1 AND status = $2",
		invoiceID, StatusOpen,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count open exceptions: %w", err)
	}
	return count, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Exception, error) {
	if !cmd.Reason.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidReason, cmd.Reason)
	}

	// ON CONFLICT DO NOTHING makes stage re-runs idempotent: a crashed stage
	// that already recorded this failure records nothing on replay.
	q := `
		INSERT INTO exceptions(id, invoice_id, reason, severity, status, detail, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (invoice_id, reason, dedup_key) DO NOTHING`

	id := uuid.New()
	severity := SeverityFor(cmd.Reason)

	affected, err := repository.ExecAffected(
		ctx, r.db, q,
		id, cmd.InvoiceID, cmd.Reason, severity, StatusOpen, cmd.Detail, cmd.DedupKey,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if affected == 0 {
		return r.findByDedup(ctx, cmd)
	}

	r.logger.Info(
		"exception recorded",
		"invoice_id", cmd.InvoiceID,
		"reason", cmd.Reason,
		"severity", severity,
	)

	return r.Find(ctx, id)
}

func (r *repo) Resolve(ctx context.Context, cmd ResolveCommand) (*Exception, error) {
	q := `
		UPDATE exceptions
		SET status = $1, resolved_by = $2, resolved_at = now(), notes = $3
		WHERE id = $4 AND status = $5`

	affected, err := repository.ExecAffected(
		ctx, r.db, q,
		StatusResolved, cmd.ResolvedBy, cmd.Notes, cmd.ID, StatusOpen,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if affected == 0 {
		existing, findErr := r.Find(ctx, cmd.ID)
		if findErr != nil {
			return nil, findErr
		}
		if existing.Status == StatusResolved {
			return nil, ErrAlreadyResolved
		}
		return nil, ErrNotFound
	}

	r.logger.Info("exception resolved", "id", cmd.ID, "resolved_by", cmd.ResolvedBy)
	return r.Find(ctx, cmd.ID)
}

func (r *repo) findByDedup(ctx context.Context, cmd CreateCommand) (*Exception, error) {
	qb := query.NewBuilder(projection)
	qb.WhereEquals("InvoiceID", cmd.InvoiceID).
		WhereEquals("Reason", string(cmd.Reason)).
		WhereEquals("DedupKey", cmd.DedupKey)
	q, args := qb.BuildSingleOrNull()

	e, err := repository.QueryOne(ctx, r.db, q, args, scanException)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &e, nil
}
