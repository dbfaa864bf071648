package ingestion

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/JaimeStill/tally/internal/invoices"
	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
	"github.com/JaimeStill/tally/pkg/storage"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
	store      storage.System
	invoices   invoices.System
	resolver   Resolver
	queue      Enqueuer
}

// New creates an ingestion repository implementing the System interface.
func New(
	db *sql.DB,
	logger *slog.Logger,
	pagination pagination.Config,
	store storage.System,
	invoiceSys invoices.System,
	resolver Resolver,
	queue Enqueuer,
) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "ingestion"),
		pagination: pagination,
		store:      store,
		invoices:   invoiceSys,
		resolver:   resolver,
		queue:      queue,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[IngestionJob], error) {
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
		return nil, fmt.Errorf("count ingestion jobs: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanJob)
	if err != nil {
		return nil, fmt.Errorf("query ingestion jobs: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*IngestionJob, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	j, err := repository.QueryOne(ctx, r.db, q, args, scanJob)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &j, nil
}

func (r *repo) Upload(ctx context.Context, cmd UploadCommand) (*IngestionJob, error) {
	if len(cmd.Data) == 0 {
		return nil, ErrEmptyUpload
	}

	job := IngestionJob{
		ID:          uuid.New(),
		Filename:    cmd.Filename,
		ContentType: cmd.ContentType,
		SizeBytes:   int64(len(cmd.Data)),
		PageCount:   pageCount(cmd.ContentType, cmd.Data),
		Fingerprint: FileFingerprint(cmd.Data),
		Source:      cmd.Source,
		Priority:    cmd.Priority,
		Status:      StatusPending,
	}
	if job.Source == "" {
		job.Source = SourceAPI
	}

	match, err := r.matchDuplicate(ctx, job.Fingerprint)
	if err != nil {
		return nil, err
	}

	if match == nil {
		if err := r.register(ctx, &job, cmd.Data); err != nil {
			// A concurrent upload can win the fingerprint index race after
			// the duplicate lookup; the loser is a detected duplicate, not a
			// failure.
			if errors.Is(err, invoices.ErrDuplicate) {
				job.Status = StatusDuplicateDetected
				return r.insert(ctx, job)
			}
			return r.insertFailed(ctx, job, err)
		}
		return r.insert(ctx, job)
	}

	job.DuplicateOf = &match.ID
	r.logger.Info(
		"duplicate detected",
		"job", job.ID,
		"fingerprint", job.Fingerprint,
		"existing", match.ID,
		"action", r.resolver.Action,
	)

	switch r.resolver.Action {
	case ActionAutoIgnore:
		job.Status = StatusDuplicateDetected
		job.Resolution = resolution(ActionAutoIgnore)

	case ActionAutoMerge:
		job.Status = StatusCompleted
		job.InvoiceID = &match.ID
		job.Resolution = resolution(ActionAutoMerge)

	case ActionManualReview:
		key := r.storageKey(job)
		if err := r.store.Upload(ctx, key, bytes.NewReader(cmd.Data), job.ContentType); err != nil {
			return r.insertFailed(ctx, job, fmt.Errorf("store upload: %w", err))
		}
		job.StorageKey = &key
		job.Status = StatusRequireReview

	case ActionReplaceExisting, ActionArchiveExisting:
		if err := r.invoices.Archive(ctx, match.ID); err != nil {
			return r.insertFailed(ctx, job, fmt.Errorf("archive existing: %w", err))
		}
		if r.resolver.Action == ActionReplaceExisting {
			if err := r.store.Delete(ctx, match.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
				r.logger.Warn("delete superseded blob failed", "key", match.StorageKey, "error", err)
			}
		}
		if err := r.register(ctx, &job, cmd.Data); err != nil {
			return r.insertFailed(ctx, job, err)
		}
		job.Resolution = resolution(r.resolver.Action)
	}

	return r.insert(ctx, job)
}

func (r *repo) Resolve(ctx context.Context, cmd ResolveCommand) (*IngestionJob, error) {
	job, err := r.Find(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusRequireReview {
		return nil, ErrNotReviewable
	}

	if !cmd.Proceed {
		if job.StorageKey != nil {
			if err := r.store.Delete(ctx, *job.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
				r.logger.Warn("delete ignored blob failed", "key", *job.StorageKey, "error", err)
			}
		}
		return r.settle(ctx, job.ID, StatusDuplicateDetected, nil, "manual_ignore")
	}

	if job.StorageKey == nil {
		return nil, fmt.Errorf("job %s has no stored file", job.ID)
	}

	inv, err := r.invoices.Create(ctx, invoices.CreateCommand{
		Fingerprint: job.Fingerprint,
		Filename:    job.Filename,
		ContentType: job.ContentType,
		StorageKey:  *job.StorageKey,
		Priority:    job.Priority,
	})
	if err != nil {
		return nil, fmt.Errorf("register invoice: %w", err)
	}

	if err := r.queue.EnqueueProcessing(ctx, inv.ID, job.Priority); err != nil {
		return nil, fmt.Errorf("enqueue processing: %w", err)
	}

	r.logger.Info("review resolved", "job", job.ID, "proceed", true, "resolved_by", cmd.ResolvedBy)
	return r.settle(ctx, job.ID, StatusCompleted, &inv.ID, "manual_proceed")
}

// register stores the upload and creates the invoice and its first
// processing task. The job is mutated with the resulting keys.
func (r *repo) register(ctx context.Context, job *IngestionJob, data []byte) error {
	key := r.storageKey(*job)
	if err := r.store.Upload(ctx, key, bytes.NewReader(data), job.ContentType); err != nil {
		return fmt.Errorf("store upload: %w", err)
	}
	job.StorageKey = &key

	inv, err := r.invoices.Create(ctx, invoices.CreateCommand{
		Fingerprint: job.Fingerprint,
		Filename:    job.Filename,
		ContentType: job.ContentType,
		StorageKey:  key,
		Priority:    job.Priority,
	})
	if err != nil {
		return fmt.Errorf("register invoice: %w", err)
	}
	job.InvoiceID = &inv.ID

	if err := r.queue.EnqueueProcessing(ctx, inv.ID, job.Priority); err != nil {
		return fmt.Errorf("enqueue processing: %w", err)
	}

	job.Status = StatusCompleted
	return nil
}

// matchDuplicate returns the existing invoice matching the fingerprint inside
// the deduplication window, or nil when the upload is novel. Archived
// invoices never count as matches.
func (r *repo) matchDuplicate(ctx context.Context, fingerprint string) (*invoices.Invoice, error) {
	existing, err := r.invoices.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, invoices.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("duplicate lookup: %w", err)
	}

	if existing.Status == invoices.StatusArchived {
		return nil, nil
	}
	if !r.resolver.InWindow(existing.CreatedAt, time.Now()) {
		return nil, nil
	}
	return existing, nil
}

func (r *repo) insert(ctx context.Context, job IngestionJob) (*IngestionJob, error) {
	q := `
		INSERT INTO ingestion_jobs(id, filename, content_type, size_bytes, page_count, fingerprint,
			storage_key, source, priority, status, invoice_id, duplicate_of, resolution, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, filename, content_type, size_bytes, page_count, fingerprint, storage_key,
			source, priority, status, invoice_id, duplicate_of, resolution, error, created_at, updated_at`

	stored, err := repository.QueryOne(
		ctx, r.db, q,
		[]any{
			job.ID, job.Filename, job.ContentType, job.SizeBytes, job.PageCount, job.Fingerprint,
			job.StorageKey, job.Source, job.Priority, job.Status, job.InvoiceID, job.DuplicateOf,
			job.Resolution, job.Error,
		},
		scanJob,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("ingestion job recorded", "id", stored.ID, "status", stored.Status)
	return &stored, nil
}

func (r *repo) insertFailed(ctx context.Context, job IngestionJob, cause error) (*IngestionJob, error) {
	job.Status = StatusFailed
	msg := cause.Error()
	job.Error = &msg

	if _, err := r.insert(ctx, job); err != nil {
		r.logger.Error("record failed job", "id", job.ID, "error", err)
	}
	return nil, cause
}

func (r *repo) settle(ctx context.Context, id uuid.UUID, status string, invoiceID *uuid.UUID, res string) (*IngestionJob, error) {
	err := repository.ExecExpectOne(
		ctx, r.db,
		`UPDATE ingestion_jobs SET status = $1, invoice_id = $2, resolution = $3, updated_at = now() WHERE id = $4`,
		status, invoiceID, res, id,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return r.Find(ctx, id)
}

func (r *repo) storageKey(job IngestionJob) string {
	name := strings.ReplaceAll(job.Filename, "..", "_")
	return fmt.Sprintf("uploads/%s/%s", job.ID, name)
}

func resolution(a Action) *string {
	s := string(a)
	return &s
}

// pageCount inspects PDF uploads for their page count. Non-PDF uploads and
// unreadable files report zero pages; extraction decides what to do with
// them.
func pageCount(contentType string, data []byte) int {
	if !strings.Contains(contentType, "pdf") {
		return 0
	}

	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0
	}
	return n
}
