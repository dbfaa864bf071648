package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/repository"
)

const taskColumns = `id, kind, invoice_id, dead_letter_id, status, priority, attempts, max_attempts,
	run_at, claimed_by, last_error, created_at, updated_at`

// Queue is the Postgres-backed durable task queue. Claims use SKIP LOCKED so
// concurrent workers never contend for the same row.
type Queue struct {
	db          *sql.DB
	logger      *slog.Logger
	maxAttempts int
}

// NewQueue creates a task queue. maxRetries bounds retries after a task's
// first execution: a task is buried only once the initial attempt and
// maxRetries retries have all failed.
func NewQueue(db *sql.DB, logger *slog.Logger, maxRetries int) *Queue {
	return &Queue{
		db:          db,
		logger:      logger.With("system", "tasks"),
		maxAttempts: maxRetries + 1,
	}
}

func scanTask(s repository.Scanner) (Task, error) {
	var t Task
	err := s.Scan(
		&t.ID,
		&t.Kind,
		&t.InvoiceID,
		&t.DeadLetterID,
		&t.Status,
		&t.Priority,
		&t.Attempts,
		&t.MaxAttempts,
		&t.RunAt,
		&t.ClaimedBy,
		&t.LastError,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

// EnqueueProcessing schedules a stage transition for an invoice. Priority is
// inherited from the originating document and orders claims ahead of older
// lower-priority work.
func (q *Queue) EnqueueProcessing(ctx context.Context, invoiceID uuid.UUID, priority int) error {
	return q.enqueue(ctx, Task{
		ID:          uuid.New(),
		Kind:        KindAdvanceStage,
		InvoiceID:   invoiceID,
		Priority:    priority,
		MaxAttempts: q.maxAttempts,
	})
}

// EnqueueRedrive schedules a dead letter's captured work to run again. A
// redrive gets a fresh retry budget and keeps the captured priority.
func (q *Queue) EnqueueRedrive(ctx context.Context, deadLetterID uuid.UUID, priority int) error {
	return q.enqueue(ctx, Task{
		ID:           uuid.New(),
		Kind:         KindRedriveDeadLetter,
		InvoiceID:    uuid.Nil,
		DeadLetterID: &deadLetterID,
		Priority:     priority,
		MaxAttempts:  q.maxAttempts,
	})
}

func (q *Queue) enqueue(ctx context.Context, t Task) error {
	err := repository.ExecExpectOne(
		ctx, q.db,
		`INSERT INTO tasks(id, kind, invoice_id, dead_letter_id, status, priority, max_attempts, run_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		t.ID, t.Kind, t.InvoiceID, t.DeadLetterID, StatusQueued, t.Priority, t.MaxAttempts,
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", t.Kind, err)
	}

	q.logger.Debug("task enqueued", "id", t.ID, "kind", t.Kind, "invoice", t.InvoiceID)
	return nil
}

// Claim atomically takes the next due task for the given worker. Returns nil
// when the queue has no due work.
func (q *Queue) Claim(ctx context.Context, worker string) (*Task, error) {
	query := fmt.Sprintf(`
		UPDATE tasks
		SET status = $1, claimed_by = $2, attempts = attempts + 1, updated_at = now()
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = $3 AND run_at <= now()
			ORDER BY priority DESC, run_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING %s`, taskColumns)

	t, err := repository.QueryOne(ctx, q.db, query, []any{StatusClaimed, worker, StatusQueued}, scanTask)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return &t, nil
}

// Complete marks a claimed task done.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID) error {
	err := repository.ExecExpectOne(
		ctx, q.db,
		`UPDATE tasks SET status = $1, updated_at = now() WHERE id = $2`,
		StatusCompleted, id,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Retry returns a failed task to the queue after a backoff delay.
func (q *Queue) Retry(ctx context.Context, id uuid.UUID, cause string, delay time.Duration) error {
	err := repository.ExecExpectOne(
		ctx, q.db,
		`UPDATE tasks SET status = $1, last_error = $2, run_at = now() + $3 * interval '1 millisecond',
			claimed_by = NULL, updated_at = now()
		 WHERE id = $4`,
		StatusQueued, cause, delay.Milliseconds(), id,
	)
	if err != nil {
		return fmt.Errorf("retry task: %w", err)
	}
	return nil
}

// Bury marks a task dead once its retry budget is exhausted or its failure
// is not retryable.
func (q *Queue) Bury(ctx context.Context, id uuid.UUID, cause string) error {
	err := repository.ExecExpectOne(
		ctx, q.db,
		`UPDATE tasks SET status = $1, last_error = $2, claimed_by = NULL, updated_at = now() WHERE id = $3`,
		StatusDead, cause, id,
	)
	if err != nil {
		return fmt.Errorf("bury task: %w", err)
	}
	return nil
}
