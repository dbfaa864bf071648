package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/pagination"
	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

const entryColumns = `id, task_id, invoice_id, stage, category, error, payload, attempts,
	priority, redrive_count, history, manual_intervention, status, created_at, updated_at`

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
	queue      Enqueuer
}

// New creates a dead letter repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config, queue Enqueuer) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "deadletter"),
		pagination: pagination,
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
) (*pagination.PageResult[Entry], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Error", "Stage")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count dead letters: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Entry, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	e, err := repository.QueryOne(ctx, r.db, q, args, scanEntry)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &e, nil
}

func (r *repo) Capture(ctx context.Context, cmd CaptureCommand) (*Entry, error) {
	category := Classify(cmd.Err)

	q := fmt.Sprintf(`
		INSERT INTO dead_letters(id, task_id, invoice_id, stage, category, error, payload, attempts, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_id) DO UPDATE SET
			category = EXCLUDED.category,
			error = EXCLUDED.error,
			attempts = EXCLUDED.attempts,
			priority = EXCLUDED.priority,
			status = CASE
				WHEN dead_letters.redrive_count >= $10 THEN '%s'
				ELSE '%s'
			END,
			manual_intervention = dead_letters.manual_intervention OR dead_letters.redrive_count >= $10,
			updated_at = now()
		RETURNING %s`, StatusFailedPermanently, StatusPending, entryColumns)

	e, err := repository.QueryOne(
		ctx, r.db, q,
		[]any{
			uuid.New(), cmd.TaskID, cmd.InvoiceID, cmd.Stage, category,
			cmd.Err.Error(), cmd.Payload, cmd.Attempts, cmd.Priority, maxRedrives,
		},
		scanEntry,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Warn(
		"task dead lettered",
		"id", e.ID,
		"task", e.TaskID,
		"invoice", e.InvoiceID,
		"stage", e.Stage,
		"category", e.Category,
		"manual_intervention", e.ManualIntervention,
	)

	return &e, nil
}

func (r *repo) Redrive(ctx context.Context, id uuid.UUID, actor string) (*Entry, error) {
	record, err := json.Marshal([]HistoryRecord{{
		RedrivenAt: time.Now().UTC(),
		RedrivenBy: actor,
	}})
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		UPDATE dead_letters
		SET status = '%s',
			redrive_count = redrive_count + 1,
			history = COALESCE(history, '[]'::jsonb) || $1::jsonb,
			updated_at = now()
		WHERE id = $2 AND status = '%s' AND NOT manual_intervention`,
		StatusRedriving, StatusPending)

	affected, err := repository.ExecAffected(ctx, r.db, q, record, id)
	if err != nil {
		return nil, fmt.Errorf("redrive dead letter: %w", err)
	}

	if affected == 0 {
		if _, findErr := r.Find(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, ErrNotRedrivable
	}

	entry, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.queue.EnqueueRedrive(ctx, id, entry.Priority); err != nil {
		return nil, fmt.Errorf("enqueue redrive: %w", err)
	}

	r.logger.Info("dead letter redriven", "id", id, "actor", actor)
	return entry, nil
}

func (r *repo) Settle(ctx context.Context, id uuid.UUID, succeeded bool, detail string) (*Entry, error) {
	record, err := json.Marshal([]HistoryRecord{{
		RedrivenAt: time.Now().UTC(),
		RedrivenBy: "worker",
		Outcome:    detail,
	}})
	if err != nil {
		return nil, err
	}

	status := StatusCompleted
	if !succeeded {
		status = StatusPending
	}

	q := fmt.Sprintf(`
		UPDATE dead_letters
		SET status = CASE
				WHEN $1 = '%s' AND redrive_count >= $2 THEN '%s'
				ELSE $1
			END,
			manual_intervention = manual_intervention OR ($1 = '%s' AND redrive_count >= $2),
			history = COALESCE(history, '[]'::jsonb) || $3::jsonb,
			updated_at = now()
		WHERE id = $4`,
		StatusPending, StatusFailedPermanently, StatusPending)

	if err := repository.ExecExpectOne(ctx, r.db, q, status, maxRedrives, record, id); err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return r.Find(ctx, id)
}

func (r *repo) Archive(ctx context.Context, id uuid.UUID, actor string) (*Entry, error) {
	record, err := json.Marshal([]HistoryRecord{{
		RedrivenAt: time.Now().UTC(),
		RedrivenBy: actor,
		Outcome:    "archived",
	}})
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		UPDATE dead_letters
		SET status = '%s',
			history = COALESCE(history, '[]'::jsonb) || $1::jsonb,
			updated_at = now()
		WHERE id = $2 AND status <> '%s'`,
		StatusArchived, StatusArchived)

	affected, err := repository.ExecAffected(ctx, r.db, q, record, id)
	if err != nil {
		return nil, fmt.Errorf("archive dead letter: %w", err)
	}

	if affected == 0 {
		if _, findErr := r.Find(ctx, id); findErr != nil {
			return nil, findErr
		}
	}

	r.logger.Info("dead letter archived", "id", id, "actor", actor)
	return r.Find(ctx, id)
}
