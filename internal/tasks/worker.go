package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/tally/internal/deadletter"
	"github.com/JaimeStill/tally/internal/idempotency"
	"github.com/JaimeStill/tally/internal/workflow"
)

// PoolConfig sizes the worker pool and its retry behavior.
type PoolConfig struct {
	Workers      int
	PollInterval time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	// PurgeInterval spaces idempotency ledger cleanup runs.
	PurgeInterval time.Duration
}

// Pool runs a fixed set of workers against the task queue.
type Pool struct {
	cfg         PoolConfig
	queue       *Queue
	engine      *workflow.Engine
	deadletters deadletter.System
	ledger      idempotency.System
	logger      *slog.Logger
}

// NewPool creates a worker pool.
func NewPool(
	cfg PoolConfig,
	queue *Queue,
	engine *workflow.Engine,
	deadletters deadletter.System,
	ledger idempotency.System,
	logger *slog.Logger,
) *Pool {
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = time.Hour
	}
	return &Pool{
		cfg:         cfg,
		queue:       queue,
		engine:      engine,
		deadletters: deadletters,
		ledger:      ledger,
		logger:      logger.With("system", "workers"),
	}
}

// Run blocks until the context is cancelled, executing tasks across the
// configured number of workers.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		name := fmt.Sprintf("worker-%d", i)
		g.Go(func() error {
			return p.work(ctx, name)
		})
	}

	g.Go(func() error {
		return p.janitor(ctx)
	})

	p.logger.Info("worker pool started", "workers", p.cfg.Workers)
	return g.Wait()
}

func (p *Pool) work(ctx context.Context, worker string) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		task, err := p.queue.Claim(ctx, worker)
		if err != nil {
			p.logger.Error("claim failed", "worker", worker, "error", err)
			task = nil
		}

		if task == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}

		p.handle(ctx, worker, task)
	}
}

func (p *Pool) handle(ctx context.Context, worker string, t *Task) {
	switch t.Kind {
	case KindAdvanceStage:
		p.advance(ctx, worker, t)
	case KindRedriveDeadLetter:
		p.redrive(ctx, worker, t)
	default:
		p.bury(ctx, t, fmt.Errorf("unknown task kind %q", t.Kind), "")
	}
}

func (p *Pool) advance(ctx context.Context, worker string, t *Task) {
	outcome, err := p.engine.Advance(ctx, t.InvoiceID, worker)
	if err != nil {
		p.fail(ctx, t, err)
		return
	}

	p.finish(ctx, t, outcome)
}

func (p *Pool) redrive(ctx context.Context, worker string, t *Task) {
	if t.DeadLetterID == nil {
		p.bury(ctx, t, errors.New("redrive task missing dead letter id"), "")
		return
	}

	entry, err := p.deadletters.Find(ctx, *t.DeadLetterID)
	if err != nil {
		p.fail(ctx, t, err)
		return
	}

	outcome, err := p.engine.Advance(ctx, entry.InvoiceID, worker)
	if err != nil {
		settleCtx := context.WithoutCancel(ctx)
		if _, settleErr := p.deadletters.Settle(settleCtx, entry.ID, false, err.Error()); settleErr != nil {
			p.logger.Error("settle redrive failed", "dead_letter", entry.ID, "error", settleErr)
		}
		p.fail(ctx, t, err)
		return
	}

	settleCtx := context.WithoutCancel(ctx)
	if _, err := p.deadletters.Settle(settleCtx, entry.ID, true, string(outcome.To)); err != nil {
		p.logger.Error("settle redrive failed", "dead_letter", entry.ID, "error", err)
	}

	p.finish(ctx, t, outcome)
}

// finish completes the task and keeps the pipeline moving while the invoice
// has runnable work left. Suspended and terminal outcomes schedule nothing.
func (p *Pool) finish(ctx context.Context, t *Task, outcome *workflow.Outcome) {
	settleCtx := context.WithoutCancel(ctx)
	if err := p.queue.Complete(settleCtx, t.ID); err != nil {
		p.logger.Error("complete task failed", "task", t.ID, "error", err)
		return
	}

	if outcome.To.Runnable() {
		if err := p.queue.EnqueueProcessing(settleCtx, outcome.InvoiceID, t.Priority); err != nil {
			p.logger.Error("enqueue next stage failed", "invoice", outcome.InvoiceID, "error", err)
		}
	}
}

func (p *Pool) fail(ctx context.Context, t *Task, cause error) {
	if !workflow.Retryable(cause) || t.Exhausted() {
		p.bury(ctx, t, cause, stageOf(cause))
		return
	}

	delay := Backoff(p.cfg.BackoffBase, p.cfg.BackoffCap, t.Attempts)
	p.logger.Warn(
		"task retry scheduled",
		"task", t.ID,
		"invoice", t.InvoiceID,
		"attempt", t.Attempts,
		"delay", delay,
		"error", cause,
	)

	settleCtx := context.WithoutCancel(ctx)
	if err := p.queue.Retry(settleCtx, t.ID, cause.Error(), delay); err != nil {
		p.logger.Error("retry task failed", "task", t.ID, "error", err)
	}
}

// bury marks the task dead and captures it in the dead letter queue so an
// operator can redrive it.
func (p *Pool) bury(ctx context.Context, t *Task, cause error, stage string) {
	settleCtx := context.WithoutCancel(ctx)
	if err := p.queue.Bury(settleCtx, t.ID, cause.Error()); err != nil {
		p.logger.Error("bury task failed", "task", t.ID, "error", err)
		return
	}

	// A failed redrive settles against its existing entry instead of
	// capturing a new one.
	if t.Kind == KindRedriveDeadLetter {
		return
	}

	payload, err := json.Marshal(t)
	if err != nil {
		payload = nil
	}

	if _, err := p.deadletters.Capture(settleCtx, deadletter.CaptureCommand{
		TaskID:    t.ID,
		InvoiceID: t.InvoiceID,
		Stage:     stage,
		Err:       cause,
		Payload:   payload,
		Attempts:  t.Attempts,
		Priority:  t.Priority,
	}); err != nil {
		p.logger.Error("dead letter capture failed", "task", t.ID, "error", err)
	}
}

func stageOf(err error) string {
	var se *workflow.StageError
	if errors.As(err, &se) {
		return string(se.Stage)
	}
	return ""
}

// janitor purges expired idempotency records on an interval.
func (p *Pool) janitor(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := p.ledger.Purge(ctx)
			if err != nil {
				p.logger.Error("ledger purge failed", "error", err)
				continue
			}
			if removed > 0 {
				p.logger.Info("ledger purged", "removed", removed)
			}
		}
	}
}
