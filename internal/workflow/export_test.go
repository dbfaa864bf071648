package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/idempotency"
	"github.com/JaimeStill/tally/internal/invoices"
)

// fakeLedger caches successful executions by key like the real ledger does.
type fakeLedger struct {
	idempotency.System

	results    map[string]json.RawMessage
	executions int
}

func (f *fakeLedger) Execute(ctx context.Context, key string, op idempotency.Operation, fn idempotency.OperationFunc) (json.RawMessage, bool, error) {
	if cached, ok := f.results[key]; ok {
		return cached, true, nil
	}

	f.executions++
	result, err := fn(ctx)
	if err != nil {
		return nil, false, err
	}

	if f.results == nil {
		f.results = map[string]json.RawMessage{}
	}
	f.results[key] = result
	return result, false, nil
}

type fakeExporter struct {
	destination string
	err         error
	calls       int
	lastPayload json.RawMessage
}

func (f *fakeExporter) Post(ctx context.Context, idempotencyKey string, payload json.RawMessage) (string, error) {
	f.calls++
	f.lastPayload = payload
	return f.destination, f.err
}

func exportEngine(fake *fakeInvoices, ledger *fakeLedger, exporter *fakeExporter) *Engine {
	e := testEngine(testConfig(), fake, &fakeExceptions{}, nil)
	e.ledger = ledger
	e.exporter = exporter
	return e
}

func exportInvoice() (*invoices.Invoice, Checkpoint) {
	inv := testInvoice()
	inv.Filename = "invoice.pdf"
	cp := Checkpoint{
		Stage: StageStageExport,
		Patch: &PatchState{Fields: goodFields()},
	}
	return inv, cp
}

func TestStageExportStagesPayloadFirst(t *testing.T) {
	inv, cp := exportInvoice()
	fake := &fakeInvoices{extraction: &invoices.ExtractionResult{
		InvoiceID: inv.ID,
		Fields:    goodFields(),
		LineItems: []invoices.LineItem{{Description: "widgets", Quantity: 2, UnitCents: 100, TotalCents: 200}},
	}}
	exporter := &fakeExporter{destination: "dest-1"}
	e := exportEngine(fake, &fakeLedger{}, exporter)

	status, next, err := e.stageExport(context.Background(), inv, cp)
	if err != nil {
		t.Fatalf("stage export failed: %v", err)
	}

	// Phase one commits the staged payload without touching the destination.
	if exporter.calls != 0 {
		t.Errorf("exporter called %d times during staging, want 0", exporter.calls)
	}
	if status != invoices.StatusStaged {
		t.Errorf("status = %s, want %s", status, invoices.StatusStaged)
	}
	if next.Stage != StageStageExport {
		t.Errorf("stage = %s, want to stay at %s", next.Stage, StageStageExport)
	}

	wantKey := fmt.Sprintf("export:%s", inv.ID)
	if next.Export == nil || next.Export.IdempotencyKey != wantKey {
		t.Fatalf("export state = %+v, want key %s pinned", next.Export, wantKey)
	}

	staged, ok := fake.exports[wantKey]
	if !ok {
		t.Fatal("no staged export recorded")
	}

	var payload struct {
		InvoiceID string            `json:"invoice_id"`
		Filename  string            `json:"filename"`
		Fields    map[string]string `json:"fields"`
		LineItems []invoices.LineItem
	}
	if err := json.Unmarshal(staged.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.InvoiceID != inv.ID.String() || payload.Filename != "invoice.pdf" {
		t.Errorf("payload header = %s/%s", payload.InvoiceID, payload.Filename)
	}
	if payload.Fields["total_amount"] != "1842.50" {
		t.Errorf("payload total_amount = %q", payload.Fields["total_amount"])
	}
}

func TestStageExportPostsStagedPayload(t *testing.T) {
	inv, cp := exportInvoice()
	fake := &fakeInvoices{extraction: &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: goodFields()}}
	ledger := &fakeLedger{}
	exporter := &fakeExporter{destination: "dest-42"}
	e := exportEngine(fake, ledger, exporter)

	_, staged, err := e.stageExport(context.Background(), inv, cp)
	if err != nil {
		t.Fatalf("staging phase failed: %v", err)
	}

	status, next, err := e.stageExport(context.Background(), inv, staged)
	if err != nil {
		t.Fatalf("post phase failed: %v", err)
	}

	if exporter.calls != 1 {
		t.Errorf("exporter called %d times, want 1", exporter.calls)
	}
	if status != invoices.StatusDone || next.Stage != StageDone {
		t.Errorf("got %s/%s, want done", next.Stage, status)
	}
	if next.Export.DestinationID == nil || *next.Export.DestinationID != "dest-42" {
		t.Errorf("destination = %v, want dest-42", next.Export.DestinationID)
	}

	if len(fake.settled) != 1 {
		t.Fatalf("settled %d exports, want 1", len(fake.settled))
	}
	if fake.settled[0].Status != invoices.ExportSent {
		t.Errorf("settle status = %s, want %s", fake.settled[0].Status, invoices.ExportSent)
	}
}

func TestStageExportReplayDoesNotPostTwice(t *testing.T) {
	inv, cp := exportInvoice()
	fake := &fakeInvoices{extraction: &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: goodFields()}}
	ledger := &fakeLedger{}
	exporter := &fakeExporter{destination: "dest-42"}
	e := exportEngine(fake, ledger, exporter)

	_, staged, err := e.stageExport(context.Background(), inv, cp)
	if err != nil {
		t.Fatalf("staging phase failed: %v", err)
	}

	// First post succeeds but its checkpoint commit is lost; the task re-runs
	// from the staged checkpoint.
	if _, _, err := e.stageExport(context.Background(), inv, staged); err != nil {
		t.Fatalf("post phase failed: %v", err)
	}
	status, next, err := e.stageExport(context.Background(), inv, staged)
	if err != nil {
		t.Fatalf("replayed post failed: %v", err)
	}

	if exporter.calls != 1 {
		t.Errorf("exporter called %d times across re-runs, want 1", exporter.calls)
	}
	if ledger.executions != 1 {
		t.Errorf("ledger executed %d times, want 1", ledger.executions)
	}
	if status != invoices.StatusDone || next.Stage != StageDone {
		t.Errorf("replay got %s/%s, want done", next.Stage, status)
	}
}

func TestStageExportFailedPostSettlesAndRetries(t *testing.T) {
	inv, cp := exportInvoice()
	fake := &fakeInvoices{extraction: &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: goodFields()}}
	exporter := &fakeExporter{err: errors.New("destination unavailable")}
	e := exportEngine(fake, &fakeLedger{}, exporter)

	_, staged, err := e.stageExport(context.Background(), inv, cp)
	if err != nil {
		t.Fatalf("staging phase failed: %v", err)
	}

	_, _, err = e.stageExport(context.Background(), inv, staged)
	if err == nil {
		t.Fatal("expected post failure")
	}
	if !Retryable(err) {
		t.Error("failed post should be retryable")
	}

	if len(fake.settled) != 1 || fake.settled[0].Status != invoices.ExportFailed {
		t.Fatalf("settled = %+v, want one failed settle", fake.settled)
	}
	if fake.settled[0].ErrorDetail == nil {
		t.Error("failed settle missing error detail")
	}
}

func TestStagePayloadReusesExistingExport(t *testing.T) {
	inv, cp := exportInvoice()
	key := fmt.Sprintf("export:%s", inv.ID)
	existing := &invoices.StagedExport{
		ID:             uuid.New(),
		InvoiceID:      inv.ID,
		Payload:        json.RawMessage(`{}`),
		IdempotencyKey: key,
		Status:         invoices.ExportPrepared,
	}
	fake := &fakeInvoices{
		extraction: &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: goodFields()},
		exports:    map[string]*invoices.StagedExport{key: existing},
	}
	e := exportEngine(fake, &fakeLedger{}, &fakeExporter{})

	_, next, err := e.stageExport(context.Background(), inv, cp)
	if err != nil {
		t.Fatalf("stage export failed: %v", err)
	}

	if next.Export.ExportID != existing.ID {
		t.Errorf("export id = %s, want existing %s", next.Export.ExportID, existing.ID)
	}
}
