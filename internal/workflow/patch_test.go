package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/exceptions"
	"github.com/JaimeStill/tally/internal/invoices"
)

func patchCheckpoint() Checkpoint {
	return Checkpoint{
		Stage: StagePatch,
		Parse: &ParseState{ExtractionID: uuid.New()},
	}
}

func TestPatchSkipsConfidentFields(t *testing.T) {
	fields := goodFields()
	inv := testInvoice()
	fake := &fakeInvoices{extraction: &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: fields}}
	enh := &fakeEnhancer{}
	e := testEngine(testConfig(), fake, &fakeExceptions{}, enh)

	status, next, err := e.patch(context.Background(), inv, patchCheckpoint())
	if err != nil {
		t.Fatalf("patch failed: %v", err)
	}

	if enh.calls != 0 {
		t.Errorf("enhancer called %d times for confident fields, want 0", enh.calls)
	}
	if status != invoices.StatusParsed || next.Stage != StageValidate {
		t.Errorf("got %s/%s, want %s/%s", next.Stage, status, StageValidate, invoices.StatusParsed)
	}
	if next.Patch == nil || len(next.Patch.Enhanced) != 0 || next.Patch.Degraded {
		t.Errorf("patch state = %+v, want untouched fields", next.Patch)
	}
}

func TestPatchEnhancesLowConfidenceSubset(t *testing.T) {
	fields := goodFields()
	fields[invoices.FieldPONumber] = invoices.Field{Value: "PO 123", Confidence: 0.55, Origin: invoices.OriginExtracted}
	// Exactly at threshold passes through untouched.
	fields[invoices.FieldTaxAmount] = invoices.Field{Value: "100.00", Confidence: 0.8, Origin: invoices.OriginExtracted}

	inv := testInvoice()
	fake := &fakeInvoices{extraction: &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: fields}}
	enh := &fakeEnhancer{
		result: invoices.FieldSet{
			invoices.FieldPONumber: {Value: "PO-123", Confidence: 0.91, Origin: invoices.OriginEnhanced},
		},
	}
	exc := &fakeExceptions{}
	e := testEngine(testConfig(), fake, exc, enh)

	_, next, err := e.patch(context.Background(), inv, patchCheckpoint())
	if err != nil {
		t.Fatalf("patch failed: %v", err)
	}

	if enh.calls != 1 {
		t.Fatalf("enhancer called %d times, want 1", enh.calls)
	}
	if len(enh.lastLo) != 1 || enh.lastLo.Value(invoices.FieldPONumber) != "PO 123" {
		t.Errorf("enhancer received %v, want only po_number", enh.lastLo.Keys())
	}

	got := next.Patch.Fields[invoices.FieldPONumber]
	if got.Value != "PO-123" || got.Origin != invoices.OriginEnhanced {
		t.Errorf("po_number = %+v, want enhanced revision", got)
	}
	if len(next.Patch.Enhanced) != 1 || next.Patch.Enhanced[0] != invoices.FieldPONumber {
		t.Errorf("enhanced = %v, want [po_number]", next.Patch.Enhanced)
	}
	if len(exc.created) != 0 {
		t.Errorf("raised %d exceptions, want 0", len(exc.created))
	}
}

func TestPatchRejectsLoweredConfidence(t *testing.T) {
	fields := goodFields()
	fields[invoices.FieldPONumber] = invoices.Field{Value: "PO 123", Confidence: 0.55, Origin: invoices.OriginExtracted}

	inv := testInvoice()
	fake := &fakeInvoices{extraction: &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: fields}}
	enh := &fakeEnhancer{
		result: invoices.FieldSet{
			invoices.FieldPONumber: {Value: "??", Confidence: 0.3, Origin: invoices.OriginEnhanced},
		},
	}
	exc := &fakeExceptions{}
	e := testEngine(testConfig(), fake, exc, enh)

	_, next, err := e.patch(context.Background(), inv, patchCheckpoint())
	if err != nil {
		t.Fatalf("patch failed: %v", err)
	}

	got := next.Patch.Fields[invoices.FieldPONumber]
	if got.Value != "PO 123" || got.Confidence != 0.55 {
		t.Errorf("po_number = %+v, want original field kept", got)
	}

	// Still below threshold after patch records a low-confidence exception
	// without blocking the transition.
	if len(exc.created) != 1 {
		t.Fatalf("raised %d exceptions, want 1", len(exc.created))
	}
	if exc.created[0].Reason != exceptions.ReasonLowConfidence {
		t.Errorf("reason = %s, want %s", exc.created[0].Reason, exceptions.ReasonLowConfidence)
	}
	if next.Stage != StageValidate {
		t.Errorf("stage = %s, want %s", next.Stage, StageValidate)
	}
}

func TestPatchDegradesOnEnhancerFailure(t *testing.T) {
	fields := goodFields()
	fields[invoices.FieldPONumber] = invoices.Field{Value: "PO 123", Confidence: 0.55, Origin: invoices.OriginExtracted}

	inv := testInvoice()
	fake := &fakeInvoices{extraction: &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: fields}}
	enh := &fakeEnhancer{err: errors.New("service unavailable")}
	exc := &fakeExceptions{}
	e := testEngine(testConfig(), fake, exc, enh)

	status, next, err := e.patch(context.Background(), inv, patchCheckpoint())
	if err != nil {
		t.Fatalf("patch degraded instead of failing, got error: %v", err)
	}

	if !next.Patch.Degraded {
		t.Error("degraded flag not set")
	}
	if got := next.Patch.Fields[invoices.FieldPONumber]; got.Confidence != 0.55 {
		t.Errorf("po_number = %+v, want original field", got)
	}
	if status != invoices.StatusParsed || next.Stage != StageValidate {
		t.Errorf("got %s/%s, want pipeline to continue", next.Stage, status)
	}
	if len(exc.created) != 1 || exc.created[0].Reason != exceptions.ReasonLowConfidence {
		t.Errorf("exceptions = %+v, want one low_confidence", exc.created)
	}
}

func TestPatchRecordsEnhancedFieldsInStableOrder(t *testing.T) {
	fields := goodFields()
	fields[invoices.FieldPONumber] = invoices.Field{Value: "PO 123", Confidence: 0.55, Origin: invoices.OriginExtracted}
	fields[invoices.FieldDueDate] = invoices.Field{Value: "2026-04-01", Confidence: 0.6, Origin: invoices.OriginExtracted}
	fields[invoices.FieldTaxAmount] = invoices.Field{Value: "100.00", Confidence: 0.7, Origin: invoices.OriginExtracted}

	inv := testInvoice()
	enhanced := invoices.FieldSet{
		invoices.FieldPONumber:  {Value: "PO-123", Confidence: 0.95, Origin: invoices.OriginEnhanced},
		invoices.FieldDueDate:   {Value: "2026-04-01", Confidence: 0.92, Origin: invoices.OriginEnhanced},
		invoices.FieldTaxAmount: {Value: "100.00", Confidence: 0.9, Origin: invoices.OriginEnhanced},
	}

	want := []string{"due_date", "po_number", "tax_amount"}

	// Identical inputs must checkpoint identically across re-runs; map
	// iteration must not leak into the recorded order.
	for run := 0; run < 5; run++ {
		fake := &fakeInvoices{extraction: &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: fields}}
		enh := &fakeEnhancer{result: enhanced}
		e := testEngine(testConfig(), fake, &fakeExceptions{}, enh)

		_, next, err := e.patch(context.Background(), inv, patchCheckpoint())
		if err != nil {
			t.Fatalf("patch failed: %v", err)
		}

		if len(next.Patch.Enhanced) != len(want) {
			t.Fatalf("enhanced = %v, want %v", next.Patch.Enhanced, want)
		}
		for i, name := range want {
			if next.Patch.Enhanced[i] != name {
				t.Fatalf("run %d: enhanced[%d] = %s, want %s", run, i, next.Patch.Enhanced[i], name)
			}
		}
	}
}
