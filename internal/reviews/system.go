package reviews

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/exceptions"
	"github.com/JaimeStill/tally/internal/invoices"
	"github.com/JaimeStill/tally/internal/workflow"
)

// Enqueuer schedules workflow processing after a decision resumes an
// invoice. The task queue satisfies this without reviews depending on it.
type Enqueuer interface {
	EnqueueProcessing(ctx context.Context, invoiceID uuid.UUID, priority int) error
}

// System defines the public contract for review operations.
type System interface {
	Handler() *Handler

	// Pending lists invoices suspended in human review, oldest first.
	Pending(ctx context.Context) ([]invoices.ReviewSummary, error)

	// Decide applies an operator decision to a suspended invoice.
	Decide(ctx context.Context, cmd DecideCommand) (*invoices.Invoice, error)
}

type system struct {
	invoices   invoices.System
	exceptions exceptions.System
	queue      Enqueuer
	claimTTL   time.Duration
	logger     *slog.Logger
}

// New creates a review system over the invoice and exception domains.
func New(
	invoiceSys invoices.System,
	exceptionSys exceptions.System,
	queue Enqueuer,
	claimTTL time.Duration,
	logger *slog.Logger,
) System {
	return &system{
		invoices:   invoiceSys,
		exceptions: exceptionSys,
		queue:      queue,
		claimTTL:   claimTTL,
		logger:     logger.With("system", "reviews"),
	}
}

func (s *system) Handler() *Handler {
	return NewHandler(s, s.logger)
}

func (s *system) Pending(ctx context.Context) ([]invoices.ReviewSummary, error) {
	return s.invoices.PendingReviews(ctx)
}

// Decide claims the invoice like a worker would, so a decision and a stage
// execution can never interleave.
func (s *system) Decide(ctx context.Context, cmd DecideCommand) (*invoices.Invoice, error) {
	switch cmd.Decision {
	case DecisionContinue, DecisionReject, DecisionRequestInfo:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, cmd.Decision)
	}

	worker := "review:" + cmd.DecidedBy
	inv, err := s.invoices.Claim(ctx, cmd.InvoiceID, worker, s.claimTTL)
	if err != nil {
		return nil, err
	}

	cp, err := workflow.DecodeCheckpoint(inv.Checkpoint)
	if err != nil {
		s.release(ctx, inv.ID, worker)
		return nil, err
	}

	if cp.Stage != workflow.StageHumanReview {
		s.release(ctx, inv.ID, worker)
		return nil, ErrNotSuspended
	}

	status := inv.Status
	enqueue := false

	switch cmd.Decision {
	case DecisionContinue:
		tagged := make(invoices.FieldSet, len(cmd.Corrections))
		for k, f := range cmd.Corrections {
			f.Origin = invoices.OriginCorrected
			if f.Confidence == 0 {
				f.Confidence = 1
			}
			tagged[k] = f
		}

		cp.Patch.Fields = cp.Patch.Fields.Merge(tagged)
		cp.Review.Corrections = cp.Review.Corrections.Merge(tagged)
		cp.Stage = workflow.StageValidate
		status = invoices.StatusParsed
		enqueue = true

	case DecisionReject:
		if err := s.raiseRejection(ctx, inv.ID, cmd); err != nil {
			s.release(ctx, inv.ID, worker)
			return nil, err
		}
		cp.Stage = workflow.StageException
		status = invoices.StatusException

	case DecisionRequestInfo:
		if cmd.Note != "" {
			cp.Review.Requests = append(cp.Review.Requests, cmd.Note)
		}
	}

	raw, err := cp.Encode()
	if err != nil {
		s.release(ctx, inv.ID, worker)
		return nil, err
	}

	committed, err := s.invoices.CommitTransition(context.WithoutCancel(ctx), invoices.TransitionCommand{
		ID:            inv.ID,
		Version:       inv.Version,
		Status:        status,
		WorkflowState: string(cp.Stage),
		Checkpoint:    raw,
	})
	if err != nil {
		return nil, err
	}

	if enqueue {
		if err := s.queue.EnqueueProcessing(ctx, inv.ID, inv.Priority); err != nil {
			return nil, fmt.Errorf("enqueue processing: %w", err)
		}
	}

	s.logger.Info(
		"review decided",
		"invoice", inv.ID,
		"decision", cmd.Decision,
		"decided_by", cmd.DecidedBy,
	)

	return committed, nil
}

func (s *system) raiseRejection(ctx context.Context, invoiceID uuid.UUID, cmd DecideCommand) error {
	detail, err := json.Marshal(map[string]string{
		"decided_by": cmd.DecidedBy,
		"note":       cmd.Note,
	})
	if err != nil {
		return err
	}

	_, err = s.exceptions.Create(ctx, exceptions.CreateCommand{
		InvoiceID: invoiceID,
		Reason:    exceptions.ReasonApprovalRequired,
		Detail:    detail,
		DedupKey:  "review:" + invoiceID.String(),
	})
	return err
}

func (s *system) release(ctx context.Context, id uuid.UUID, worker string) {
	if err := s.invoices.Release(context.WithoutCancel(ctx), id, worker); err != nil {
		s.logger.Warn("release claim failed", "invoice", id, "error", err)
	}
}
