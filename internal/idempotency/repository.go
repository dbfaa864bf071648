package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/tally/pkg/repository"
)

// store is the persistence surface the ledger drives. The claim and replay
// protocol lives above it in repo, keeping the protocol independent of SQL.
type store interface {
	claim(ctx context.Context, key string, op Operation) (bool, *Record, error)
	find(ctx context.Context, key string) (*Record, error)
	reclaimFailed(ctx context.Context, key string) (bool, error)
	settle(ctx context.Context, key, status string, result json.RawMessage, lastError string) error
	purge(ctx context.Context) (int64, error)
}

type repo struct {
	store  store
	cfg    Config
	logger *slog.Logger
}

// New creates an idempotency ledger implementing the System interface.
func New(db *sql.DB, cfg Config, logger *slog.Logger) System {
	if cfg.MaxExecutions <= 0 {
		cfg.MaxExecutions = 1
	}
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = 250 * time.Millisecond
	}
	return &repo{
		store:  &sqlStore{db: db, cfg: cfg},
		cfg:    cfg,
		logger: logger.With("system", "idempotency"),
	}
}

func (r *repo) Execute(ctx context.Context, key string, op Operation, fn OperationFunc) (json.RawMessage, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	for {
		claimed, rec, err := r.store.claim(ctx, key, op)
		if err != nil {
			return nil, false, err
		}

		if claimed {
			return r.run(ctx, key, fn)
		}

		switch rec.Status {
		case StatusCompleted:
			return rec.Result, true, nil
		case StatusPending, StatusInProgress:
			if r.cfg.Policy == ConflictFail {
				return nil, false, ErrInFlight
			}
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(r.cfg.WaitInterval):
			}
		case StatusFailed:
			if rec.ExecutionCount >= rec.MaxExecutions {
				return nil, false, ErrExhausted
			}
			retried, err := r.store.reclaimFailed(ctx, key)
			if err != nil {
				return nil, false, err
			}
			if retried {
				return r.run(ctx, key, fn)
			}
		case StatusCancelled:
			return nil, false, ErrExhausted
		default:
			return nil, false, fmt.Errorf("idempotency record %s in unknown status %q", key, rec.Status)
		}
	}
}

func (r *repo) run(ctx context.Context, key string, fn OperationFunc) (json.RawMessage, bool, error) {
	result, err := fn(ctx)
	if err != nil {
		if settleErr := r.settle(ctx, key, StatusFailed, nil, err.Error()); settleErr != nil {
			r.logger.Error("failed to settle idempotency record", "key", key, "error", settleErr)
		}
		return nil, false, err
	}

	if err := r.settle(ctx, key, StatusCompleted, result, ""); err != nil {
		return nil, false, fmt.Errorf("settle idempotency record: %w", err)
	}

	return result, false, nil
}

func (r *repo) settle(ctx context.Context, key, status string, result json.RawMessage, lastError string) error {
	// The settle context is detached from cancellation: once side effects ran,
	// the ledger must record the outcome even if the caller gave up.
	return r.store.settle(context.WithoutCancel(ctx), key, status, result, lastError)
}

func (r *repo) Find(ctx context.Context, key string) (*Record, error) {
	return r.store.find(ctx, key)
}

func (r *repo) Purge(ctx context.Context) (int64, error) {
	affected, err := r.store.purge(ctx)
	if err != nil {
		return 0, err
	}

	if affected > 0 {
		r.logger.Info("purged expired idempotency records", "count", affected)
	}
	return affected, nil
}

const recordColumns = `key, operation, status, execution_count, max_executions, result, last_error, expires_at, created_at, updated_at`

type sqlStore struct {
	db  *sql.DB
	cfg Config
}

func scanRecord(s repository.Scanner) (Record, error) {
	var r Record
	err := s.Scan(
		&r.Key,
		&r.Operation,
		&r.Status,
		&r.ExecutionCount,
		&r.MaxExecutions,
		&r.Result,
		&r.LastError,
		&r.ExpiresAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

// claim attempts to register the key. Returns (true, nil) when this caller
// owns the execution, or (false, existing) when a prior record exists.
func (s *sqlStore) claim(ctx context.Context, key string, op Operation) (bool, *Record, error) {
	q := `
		INSERT INTO idempotency_records(key, operation, status, execution_count, max_executions, expires_at)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (key) DO NOTHING`

	affected, err := repository.ExecAffected(
		ctx, s.db, q,
		key, op, StatusInProgress, s.cfg.MaxExecutions, time.Now().Add(s.cfg.TTL),
	)
	if err != nil {
		return false, nil, fmt.Errorf("claim idempotency key: %w", err)
	}

	if affected == 1 {
		return true, nil, nil
	}

	rec, err := s.find(ctx, key)
	if err != nil {
		return false, nil, err
	}
	return false, rec, nil
}

func (s *sqlStore) find(ctx context.Context, key string) (*Record, error) {
	q := fmt.Sprintf("SELECT %s FROM idempotency_records WHERE key = $1", recordColumns)

	rec, err := repository.QueryOne(ctx, s.db, q, []any{key}, scanRecord)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &rec, nil
}

func (s *sqlStore) reclaimFailed(ctx context.Context, key string) (bool, error) {
	q := `
		UPDATE idempotency_records
		SET status = $1, execution_count = execution_count + 1, updated_at = now()
		WHERE key = $2 AND status = $3 AND execution_count < max_executions`

	affected, err := repository.ExecAffected(ctx, s.db, q, StatusInProgress, key, StatusFailed)
	if err != nil {
		return false, fmt.Errorf("reclaim idempotency key: %w", err)
	}
	return affected == 1, nil
}

func (s *sqlStore) settle(ctx context.Context, key, status string, result json.RawMessage, lastError string) error {
	var errVal *string
	if lastError != "" {
		errVal = &lastError
	}

	return repository.ExecExpectOne(
		ctx, s.db,
		`UPDATE idempotency_records SET status = $1, result = $2, last_error = $3, updated_at = now() WHERE key = $4`,
		status, result, errVal, key,
	)
}

func (s *sqlStore) purge(ctx context.Context) (int64, error) {
	affected, err := repository.ExecAffected(
		ctx, s.db,
		"DELETE FROM idempotency_records WHERE expires_at < now()",
	)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency records: %w", err)
	}
	return affected, nil
}
