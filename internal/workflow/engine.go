package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/exceptions"
	"github.com/JaimeStill/tally/internal/extraction"
	"github.com/JaimeStill/tally/internal/idempotency"
	"github.com/JaimeStill/tally/internal/ingestion"
	"github.com/JaimeStill/tally/internal/invoices"
	"github.com/JaimeStill/tally/pkg/storage"
)

// Extractor submits documents to the extraction service.
type Extractor interface {
	Extract(ctx context.Context, filename, contentType string, document io.Reader) (*extraction.Result, error)
}

// Enhancer submits low-confidence fields for revision.
type Enhancer interface {
	Enhance(ctx context.Context, low, full invoices.FieldSet) (invoices.FieldSet, error)
}

// Exporter posts prepared payloads to the export destination.
type Exporter interface {
	Post(ctx context.Context, idempotencyKey string, payload json.RawMessage) (string, error)
}

// Config holds the tunable behavior of the pipeline.
type Config struct {
	ClaimTTL             time.Duration
	ConfidenceThreshold  float64
	AutoApproveThreshold float64
	AmountToleranceCents int64
	AllowedCurrencies    []string
	ClosedPeriods        []string
	RulesVersion         string
	DedupStrategy        ingestion.Strategy
	DedupWindow          time.Duration
}

// Engine executes workflow stages against claimed invoices.
type Engine struct {
	cfg        Config
	invoices   invoices.System
	exceptions exceptions.System
	store      storage.System
	extractor  Extractor
	enhancer   Enhancer
	exporter   Exporter
	ledger     idempotency.System
	logger     *slog.Logger
	custom     []Rule
}

// NewEngine creates a workflow engine.
func NewEngine(
	cfg Config,
	invoiceSys invoices.System,
	exceptionSys exceptions.System,
	store storage.System,
	extractor Extractor,
	enhancer Enhancer,
	exporter Exporter,
	ledger idempotency.System,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:        cfg,
		invoices:   invoiceSys,
		exceptions: exceptionSys,
		store:      store,
		extractor:  extractor,
		enhancer:   enhancer,
		exporter:   exporter,
		ledger:     ledger,
		logger:     logger.With("system", "workflow"),
		custom:     nil,
	}
}

// WithRules registers operator-defined validation rules appended to the
// built-in battery.
func (e *Engine) WithRules(rules ...Rule) *Engine {
	e.custom = append(e.custom, rules...)
	return e
}

// Outcome reports one committed stage transition.
type Outcome struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	From      Stage     `json:"from"`
	To        Stage     `json:"to"`
	Status    string    `json:"status"`
}

// Suspended reports whether the invoice is waiting on a human decision.
func (o *Outcome) Suspended() bool {
	return o.To == StageHumanReview
}

// Terminal reports whether the pipeline finished with this invoice.
func (o *Outcome) Terminal() bool {
	return o.To.Terminal()
}

// Advance claims the invoice, executes the stage named by its checkpoint, and
// commits the resulting transition. A claimed or suspended invoice is not an
// error for the caller to retry forever: ErrClaimed surfaces as-is, and a
// non-runnable stage returns a no-op outcome.
func (e *Engine) Advance(ctx context.Context, invoiceID uuid.UUID, worker string) (*Outcome, error) {
	inv, err := e.invoices.Claim(ctx, invoiceID, worker, e.cfg.ClaimTTL)
	if err != nil {
		return nil, err
	}

	cp, err := DecodeCheckpoint(inv.Checkpoint)
	if err != nil {
		e.release(ctx, inv.ID, worker)
		return nil, fatal(StageReceive, err)
	}

	if !cp.Stage.Runnable() {
		e.release(ctx, inv.ID, worker)
		return &Outcome{InvoiceID: inv.ID, From: cp.Stage, To: cp.Stage, Status: inv.Status}, nil
	}

	status, next, err := e.execute(ctx, inv, cp)
	if err != nil {
		e.release(ctx, inv.ID, worker)
		return nil, err
	}

	return e.commit(ctx, inv, cp.Stage, status, next)
}

// commit persists the transition. The commit itself must not be abandoned to
// a cancelled request context once the stage's side effects have happened.
func (e *Engine) commit(ctx context.Context, inv *invoices.Invoice, from Stage, status string, next Checkpoint) (*Outcome, error) {
	raw, err := next.Encode()
	if err != nil {
		return nil, fatal(from, err)
	}

	settleCtx := context.WithoutCancel(ctx)
	if _, err := e.invoices.CommitTransition(settleCtx, invoices.TransitionCommand{
		ID:            inv.ID,
		Version:       inv.Version,
		Status:        status,
		WorkflowState: string(next.Stage),
		Checkpoint:    raw,
	}); err != nil {
		return nil, err
	}

	e.logger.Info(
		"stage complete",
		"invoice", inv.ID,
		"from", from,
		"to", next.Stage,
		"status", status,
	)

	return &Outcome{InvoiceID: inv.ID, From: from, To: next.Stage, Status: status}, nil
}

func (e *Engine) execute(ctx context.Context, inv *invoices.Invoice, cp Checkpoint) (string, Checkpoint, error) {
	switch cp.Stage {
	case StageReceive:
		return e.receive(ctx, inv, cp)
	case StageParse:
		return e.parse(ctx, inv, cp)
	case StagePatch:
		return e.patch(ctx, inv, cp)
	case StageValidate:
		return e.validate(ctx, inv, cp)
	case StageTriage:
		return e.triage(ctx, inv, cp)
	case StageStageExport:
		return e.stageExport(ctx, inv, cp)
	default:
		return "", cp, fatal(cp.Stage, fmt.Errorf("stage %s is not executable", cp.Stage))
	}
}

func (e *Engine) release(ctx context.Context, id uuid.UUID, worker string) {
	if err := e.invoices.Release(context.WithoutCancel(ctx), id, worker); err != nil {
		e.logger.Warn("release claim failed", "invoice", id, "worker", worker, "error", err)
	}
}

// raise records an exception idempotently. The dedup key ties the exception
// to the failure that produced it, so re-running the stage records nothing
// new.
func (e *Engine) raise(ctx context.Context, invoiceID uuid.UUID, reason exceptions.ReasonCode, dedupKey string, detail any) error {
	var raw json.RawMessage
	if detail != nil {
		encoded, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		raw = encoded
	}

	_, err := e.exceptions.Create(ctx, exceptions.CreateCommand{
		InvoiceID: invoiceID,
		Reason:    reason,
		Detail:    raw,
		DedupKey:  dedupKey,
	})
	return err
}
