package invoices

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

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

// New creates an invoice repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "invoices"),
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
) (*pagination.PageResult[Invoice], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Filename", "Fingerprint")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count invoices: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanInvoice)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	i, err := repository.QueryOne(ctx, r.db, q, args, scanInvoice)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &i, nil
}

func (r *repo) FindByFingerprint(ctx context.Context, fingerprint string) (*Invoice, error) {
	qb := query.NewBuilder(projection)
	qb.WhereEquals("Fingerprint", fingerprint)
	q, args := qb.BuildSingleOrNull()

	i, err := repository.QueryOne(ctx, r.db, q, args, scanInvoice)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &i, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Invoice, error) {
	q := `
		INSERT INTO invoices(id, fingerprint, filename, content_type, storage_key, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, fingerprint, filename, content_type, storage_key, priority, status, workflow_state, checkpoint, version, claimed_by, claim_expires, created_at, updated_at`

	insertArgs := []any{
		uuid.New(),
		cmd.Fingerprint,
		cmd.Filename,
		cmd.ContentType,
		cmd.StorageKey,
		cmd.Priority,
	}

	i, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Invoice, error) {
		return repository.QueryOne(ctx, tx, q, insertArgs, scanInvoice)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("invoice created", "id", i.ID, "fingerprint", i.Fingerprint)
	return &i, nil
}

func (r *repo) Claim(ctx context.Context, id uuid.UUID, worker string, ttl time.Duration) (*Invoice, error) {
	q := `
		UPDATE invoices
		SET claimed_by = $1, claim_expires = $2, updated_at = now()
		WHERE id = $3 AND (claimed_by IS NULL OR claim_expires < now() OR claimed_by = $1)`

	affected, err := repository.ExecAffected(ctx, r.db, q, worker, time.Now().Add(ttl), id)
	if err != nil {
		return nil, fmt.Errorf("claim invoice: %w", err)
	}

	if affected == 0 {
		if _, findErr := r.Find(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, ErrClaimed
	}

	return r.Find(ctx, id)
}

func (r *repo) Release(ctx context.Context, id uuid.UUID, worker string) error {
	q := `
		UPDATE invoices
		SET claimed_by = NULL, claim_expires = NULL, updated_at = now()
		WHERE id = $1 AND claimed_by = $2`

	if _, err := repository.ExecAffected(ctx, r.db, q, id, worker); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

func (r *repo) CommitTransition(ctx context.Context, cmd TransitionCommand) (*Invoice, error) {
	q := `
		UPDATE invoices
		SET status = $1, workflow_state = $2, checkpoint = $3,
		    version = version + 1, claimed_by = NULL, claim_expires = NULL, updated_at = now()
		WHERE id = $4 AND version = $5`

	affected, err := repository.ExecAffected(
		ctx, r.db, q,
		cmd.Status, cmd.WorkflowState, cmd.Checkpoint, cmd.ID, cmd.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	if affected == 0 {
		if _, findErr := r.Find(ctx, cmd.ID); findErr != nil {
			return nil, findErr
		}
		return nil, ErrVersionConflict
	}

	r.logger.Info(
		"stage transition committed",
		"id", cmd.ID,
		"status", cmd.Status,
		"workflow_state", cmd.WorkflowState,
	)

	return r.Find(ctx, cmd.ID)
}

func (r *repo) RecordExtraction(ctx context.Context, result *ExtractionResult) (*ExtractionResult, error) {
	fields, err := json.Marshal(result.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode extraction fields: %w", err)
	}

	lineItems, err := json.Marshal(result.LineItems)
	if err != nil {
		return nil, fmt.Errorf("encode extraction line items: %w", err)
	}

	q := `
		INSERT INTO extraction_results(id, invoice_id, fields, line_items, extractor_version, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, invoice_id, fields, line_items, extractor_version, duration_ms, created_at`

	id := result.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	stored, err := repository.QueryOne(
		ctx, r.db, q,
		[]any{id, result.InvoiceID, fields, lineItems, result.ExtractorVersion, result.DurationMS},
		scanExtraction,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &stored, nil
}

func (r *repo) LatestExtraction(ctx context.Context, invoiceID uuid.UUID) (*ExtractionResult, error) {
	q := `
		SELECT id, invoice_id, fields, line_items, extractor_version, duration_ms, created_at
		FROM extraction_results
		WHERE invoice_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	result, err := repository.QueryOne(ctx, r.db, q, []any{invoiceID}, scanExtraction)
	if err != nil {
		return nil, repository.MapError(err, ErrNoExtraction, ErrDuplicate)
	}
	return &result, nil
}

func (r *repo) RecordValidation(ctx context.Context, result *ValidationResult) (*ValidationResult, error) {
	q := `
		INSERT INTO validation_results(id, invoice_id, passed, checks, rules_version)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, invoice_id, passed, checks, rules_version, created_at`

	id := result.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	stored, err := repository.QueryOne(
		ctx, r.db, q,
		[]any{id, result.InvoiceID, result.Passed, result.Checks, result.RulesVersion},
		scanValidation,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &stored, nil
}

func (r *repo) LatestValidation(ctx context.Context, invoiceID uuid.UUID) (*ValidationResult, error) {
	q := `
		SELECT id, invoice_id, passed, checks, rules_version, created_at
		FROM validation_results
		WHERE invoice_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	result, err := repository.QueryOne(ctx, r.db, q, []any{invoiceID}, scanValidation)
	if err != nil {
		return nil, repository.MapError(err, ErrNoValidation, ErrDuplicate)
	}
	return &result, nil
}

const exportColumns = `id, invoice_id, payload, format, status, idempotency_key, destination_id, error_detail, created_at, updated_at`

func (r *repo) CreateExport(ctx context.Context, export *StagedExport) (*StagedExport, error) {
	q := fmt.Sprintf(`
		INSERT INTO staged_exports(id, invoice_id, payload, format, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s`, exportColumns)

	id := export.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	stored, err := repository.QueryOne(
		ctx, r.db, q,
		[]any{id, export.InvoiceID, export.Payload, export.Format, ExportPrepared, export.IdempotencyKey},
		scanExport,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &stored, nil
}

func (r *repo) FindExportByKey(ctx context.Context, idempotencyKey string) (*StagedExport, error) {
	q := fmt.Sprintf("SELECT %s FROM staged_exports WHERE idempotency_key = $1", exportColumns)

	e, err := repository.QueryOne(ctx, r.db, q, []any{idempotencyKey}, scanExport)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &e, nil
}

func (r *repo) SettleExport(ctx context.Context, id uuid.UUID, status string, destinationID, errorDetail *string) error {
	err := repository.ExecExpectOne(
		ctx, r.db,
		`UPDATE staged_exports SET status = $1, destination_id = $2, error_detail = $3, updated_at = now() WHERE id = $4`,
		status, destinationID, errorDetail, id,
	)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (r *repo) ExportsFor(ctx context.Context, invoiceID uuid.UUID) ([]StagedExport, error) {
	q := fmt.Sprintf(
		"SELECT %s FROM staged_exports WHERE invoice_id = $1 ORDER BY created_at DESC",
		exportColumns,
	)

	items, err := repository.QueryMany(ctx, r.db, q, []any{invoiceID}, scanExport)
	if err != nil {
		return nil, fmt.Errorf("query staged exports: %w", err)
	}
	return items, nil
}

func (r *repo) Archive(ctx context.Context, id uuid.UUID) error {
	q := `
		UPDATE invoices
		SET status = $1, version = version + 1, claimed_by = NULL, claim_expires = NULL, updated_at = now()
		WHERE id = $2 AND status <> $1`

	affected, err := repository.ExecAffected(ctx, r.db, q, StatusArchived, id)
	if err != nil {
		return fmt.Errorf("archive invoice: %w", err)
	}

	if affected == 0 {
		if _, findErr := r.Find(ctx, id); findErr != nil {
			return findErr
		}
		return nil
	}

	r.logger.Info("invoice archived", "id", id)
	return nil
}

func (r *repo) PendingReviews(ctx context.Context) ([]ReviewSummary, error) {
	q := `
		SELECT id, filename, status, workflow_state, updated_at
		FROM invoices
		WHERE workflow_state = 'human_review'
		ORDER BY updated_at ASC`

	items, err := repository.QueryMany(ctx, r.db, q, nil, scanReviewSummary)
	if err != nil {
		return nil, fmt.Errorf("query pending reviews: %w", err)
	}
	return items, nil
}

func (r *repo) VendorKnown(ctx context.Context, vendorName string, exclude uuid.UUID) (bool, error) {
	q := `
		SELECT EXISTS (
			SELECT 1 FROM extraction_results er
			JOIN invoices i ON i.id = er.invoice_id
			WHERE er.fields -> 'vendor_name' ->> 'value' = $1 AND i.id <> $2
		)`

	var known bool
	if err := r.db.QueryRowContext(ctx, q, vendorName, exclude).Scan(&known); err != nil {
		return false, fmt.Errorf("vendor lookup: %w", err)
	}
	return known, nil
}

func (r *repo) ReferenceMatch(ctx context.Context, vendorName, invoiceNumber string, exclude uuid.UUID) (*ReferenceHit, error) {
	q := `
		SELECT i.id, er.fields -> 'total_amount' ->> 'value', i.created_at
		FROM extraction_results er
		JOIN invoices i ON i.id = er.invoice_id
		WHERE er.fields -> 'vendor_name' ->> 'value' = $1
		  AND er.fields -> 'invoice_number' ->> 'value' = $2
		  AND i.id <> $3
		  AND i.status <> $4
		ORDER BY er.created_at DESC
		LIMIT 1`

	var hit ReferenceHit
	err := r.db.QueryRowContext(ctx, q, vendorName, invoiceNumber, exclude, StatusArchived).
		Scan(&hit.InvoiceID, &hit.TotalValue, &hit.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reference lookup: %w", err)
	}
	return &hit, nil
}
