package reviews_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/exceptions"
	"github.com/JaimeStill/tally/internal/invoices"
	"github.com/JaimeStill/tally/internal/reviews"
	"github.com/JaimeStill/tally/internal/workflow"
)

type fakeInvoices struct {
	invoices.System

	invoice  *invoices.Invoice
	claimed  []string
	released []string
	commits  []invoices.TransitionCommand
}

func (f *fakeInvoices) Claim(ctx context.Context, id uuid.UUID, worker string, ttl time.Duration) (*invoices.Invoice, error) {
	if f.invoice == nil || f.invoice.ID != id {
		return nil, invoices.ErrNotFound
	}
	f.claimed = append(f.claimed, worker)
	return f.invoice, nil
}

func (f *fakeInvoices) Release(ctx context.Context, id uuid.UUID, worker string) error {
	f.released = append(f.released, worker)
	return nil
}

func (f *fakeInvoices) CommitTransition(ctx context.Context, cmd invoices.TransitionCommand) (*invoices.Invoice, error) {
	f.commits = append(f.commits, cmd)
	committed := *f.invoice
	committed.Status = cmd.Status
	committed.WorkflowState = cmd.WorkflowState
	committed.Checkpoint = cmd.Checkpoint
	committed.Version = cmd.Version + 1
	return &committed, nil
}

type fakeExceptions struct {
	exceptions.System

	created []exceptions.CreateCommand
}

func (f *fakeExceptions) Create(ctx context.Context, cmd exceptions.CreateCommand) (*exceptions.Exception, error) {
	f.created = append(f.created, cmd)
	return &exceptions.Exception{ID: uuid.New(), InvoiceID: cmd.InvoiceID, Reason: cmd.Reason}, nil
}

type fakeQueue struct {
	enqueued   []uuid.UUID
	priorities []int
}

func (f *fakeQueue) EnqueueProcessing(ctx context.Context, invoiceID uuid.UUID, priority int) error {
	f.enqueued = append(f.enqueued, invoiceID)
	f.priorities = append(f.priorities, priority)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func suspendedInvoice(t *testing.T) *invoices.Invoice {
	t.Helper()

	cp := workflow.Checkpoint{
		Stage: workflow.StageHumanReview,
		Parse: &workflow.ParseState{ExtractionID: uuid.New()},
		Patch: &workflow.PatchState{
			Fields: invoices.FieldSet{
				invoices.FieldVendorName:  {Value: "Acme Corp", Confidence: 0.95, Origin: invoices.OriginExtracted},
				invoices.FieldTotalAmount: {Value: "1842.50", Confidence: 0.7, Origin: invoices.OriginExtracted},
			},
		},
		Review: &workflow.ReviewState{
			Reason:      "confidence below auto-approve threshold",
			SuspendedAt: time.Now().UTC(),
		},
	}

	raw, err := cp.Encode()
	if err != nil {
		t.Fatalf("encode checkpoint: %v", err)
	}

	return &invoices.Invoice{
		ID:            uuid.New(),
		Status:        invoices.StatusValidated,
		WorkflowState: string(workflow.StageHumanReview),
		Checkpoint:    raw,
		Version:       4,
	}
}

func decodeCommitted(t *testing.T, cmd invoices.TransitionCommand) workflow.Checkpoint {
	t.Helper()
	cp, err := workflow.DecodeCheckpoint(cmd.Checkpoint)
	if err != nil {
		t.Fatalf("decode committed checkpoint: %v", err)
	}
	return cp
}

func TestDecideInvalidDecision(t *testing.T) {
	sys := reviews.New(&fakeInvoices{}, &fakeExceptions{}, &fakeQueue{}, time.Minute, discardLogger())

	_, err := sys.Decide(context.Background(), reviews.DecideCommand{
		InvoiceID: uuid.New(),
		Decision:  "approve",
		DecidedBy: "ap-clerk",
	})
	if !errors.Is(err, reviews.ErrInvalidDecision) {
		t.Errorf("error = %v, want ErrInvalidDecision", err)
	}
}

func TestDecideNotSuspended(t *testing.T) {
	cp := workflow.Checkpoint{Stage: workflow.StageReceive}
	raw, _ := cp.Encode()
	inv := &invoices.Invoice{ID: uuid.New(), Checkpoint: raw, Status: invoices.StatusReceived}

	invs := &fakeInvoices{invoice: inv}
	sys := reviews.New(invs, &fakeExceptions{}, &fakeQueue{}, time.Minute, discardLogger())

	_, err := sys.Decide(context.Background(), reviews.DecideCommand{
		InvoiceID: inv.ID,
		Decision:  reviews.DecisionContinue,
		DecidedBy: "ap-clerk",
	})
	if !errors.Is(err, reviews.ErrNotSuspended) {
		t.Fatalf("error = %v, want ErrNotSuspended", err)
	}
	if len(invs.released) != 1 {
		t.Errorf("claim released %d times, want 1", len(invs.released))
	}
}

func TestDecideContinueMergesCorrections(t *testing.T) {
	inv := suspendedInvoice(t)
	invs := &fakeInvoices{invoice: inv}
	queue := &fakeQueue{}
	sys := reviews.New(invs, &fakeExceptions{}, queue, time.Minute, discardLogger())

	committed, err := sys.Decide(context.Background(), reviews.DecideCommand{
		InvoiceID: inv.ID,
		Decision:  reviews.DecisionContinue,
		Corrections: invoices.FieldSet{
			invoices.FieldTotalAmount: {Value: "1850.00"},
		},
		DecidedBy: "ap-clerk",
	})
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}

	if len(invs.commits) != 1 {
		t.Fatalf("committed %d transitions, want 1", len(invs.commits))
	}
	cmd := invs.commits[0]
	if cmd.Version != 4 {
		t.Errorf("commit version = %d, want claimed version 4", cmd.Version)
	}
	if cmd.Status != invoices.StatusParsed || cmd.WorkflowState != string(workflow.StageValidate) {
		t.Errorf("committed %s/%s, want %s/%s", cmd.Status, cmd.WorkflowState, invoices.StatusParsed, workflow.StageValidate)
	}

	cp := decodeCommitted(t, cmd)
	got := cp.Patch.Fields[invoices.FieldTotalAmount]
	if got.Value != "1850.00" {
		t.Errorf("total_amount = %q, want correction applied", got.Value)
	}
	if got.Origin != invoices.OriginCorrected {
		t.Errorf("origin = %s, want %s", got.Origin, invoices.OriginCorrected)
	}
	if got.Confidence != 1 {
		t.Errorf("confidence = %v, want defaulted to 1", got.Confidence)
	}
	if cp.Review.Corrections.Value(invoices.FieldTotalAmount) != "1850.00" {
		t.Error("correction not recorded in review state")
	}
	if cp.Patch.Fields.Value(invoices.FieldVendorName) != "Acme Corp" {
		t.Error("untouched field lost in merge")
	}

	if len(queue.enqueued) != 1 || queue.enqueued[0] != inv.ID {
		t.Errorf("enqueued = %v, want [%s]", queue.enqueued, inv.ID)
	}
	if committed.WorkflowState != string(workflow.StageValidate) {
		t.Errorf("returned invoice state = %s, want %s", committed.WorkflowState, workflow.StageValidate)
	}
}

func TestDecideRejectRaisesException(t *testing.T) {
	inv := suspendedInvoice(t)
	invs := &fakeInvoices{invoice: inv}
	exc := &fakeExceptions{}
	queue := &fakeQueue{}
	sys := reviews.New(invs, exc, queue, time.Minute, discardLogger())

	_, err := sys.Decide(context.Background(), reviews.DecideCommand{
		InvoiceID: inv.ID,
		Decision:  reviews.DecisionReject,
		Note:      "unreadable scan",
		DecidedBy: "ap-clerk",
	})
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}

	if len(exc.created) != 1 {
		t.Fatalf("raised %d exceptions, want 1", len(exc.created))
	}
	created := exc.created[0]
	if created.Reason != exceptions.ReasonApprovalRequired {
		t.Errorf("reason = %s, want %s", created.Reason, exceptions.ReasonApprovalRequired)
	}
	if created.DedupKey != "review:"+inv.ID.String() {
		t.Errorf("dedup key = %q", created.DedupKey)
	}

	var detail map[string]string
	if err := json.Unmarshal(created.Detail, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail["note"] != "unreadable scan" || detail["decided_by"] != "ap-clerk" {
		t.Errorf("detail = %v", detail)
	}

	cmd := invs.commits[0]
	if cmd.Status != invoices.StatusException || cmd.WorkflowState != string(workflow.StageException) {
		t.Errorf("committed %s/%s, want exception", cmd.Status, cmd.WorkflowState)
	}
	if len(queue.enqueued) != 0 {
		t.Errorf("rejection enqueued %d tasks, want 0", len(queue.enqueued))
	}
}

func TestDecideRequestInfoStaysSuspended(t *testing.T) {
	inv := suspendedInvoice(t)
	invs := &fakeInvoices{invoice: inv}
	queue := &fakeQueue{}
	sys := reviews.New(invs, &fakeExceptions{}, queue, time.Minute, discardLogger())

	_, err := sys.Decide(context.Background(), reviews.DecideCommand{
		InvoiceID: inv.ID,
		Decision:  reviews.DecisionRequestInfo,
		Note:      "need the PO number",
		DecidedBy: "ap-clerk",
	})
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}

	cmd := invs.commits[0]
	if cmd.WorkflowState != string(workflow.StageHumanReview) {
		t.Errorf("state = %s, want still suspended", cmd.WorkflowState)
	}

	cp := decodeCommitted(t, cmd)
	if len(cp.Review.Requests) != 1 || cp.Review.Requests[0] != "need the PO number" {
		t.Errorf("requests = %v", cp.Review.Requests)
	}
	if len(queue.enqueued) != 0 {
		t.Errorf("request for info enqueued %d tasks, want 0", len(queue.enqueued))
	}
}

func TestDecideContinueKeepsDocumentPriority(t *testing.T) {
	inv := suspendedInvoice(t)
	inv.Priority = 7
	invs := &fakeInvoices{invoice: inv}
	queue := &fakeQueue{}
	sys := reviews.New(invs, &fakeExceptions{}, queue, time.Minute, discardLogger())

	_, err := sys.Decide(context.Background(), reviews.DecideCommand{
		InvoiceID: inv.ID,
		Decision:  reviews.DecisionContinue,
		DecidedBy: "ap-clerk",
	})
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}

	if len(queue.priorities) != 1 || queue.priorities[0] != 7 {
		t.Errorf("enqueued priorities = %v, want [7]", queue.priorities)
	}
}
