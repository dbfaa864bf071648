package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/exceptions"
	"github.com/JaimeStill/tally/internal/ingestion"
	"github.com/JaimeStill/tally/internal/invoices"
)

func ruleInput(fields invoices.FieldSet, items ...invoices.LineItem) RuleInput {
	return RuleInput{Invoice: testInvoice(), Fields: fields, LineItems: items}
}

func TestCheckRequiredFields(t *testing.T) {
	if got := checkRequiredFields(ruleInput(goodFields())); !got.Passed {
		t.Errorf("complete fields failed: %s", got.Detail)
	}

	fields := goodFields()
	delete(fields, invoices.FieldTotalAmount)
	fields[invoices.FieldVendorName] = invoices.Field{Value: "   "}

	got := checkRequiredFields(ruleInput(fields))
	if got.Passed {
		t.Fatal("missing fields passed")
	}
	if got.Reason != string(exceptions.ReasonMissingField) {
		t.Errorf("reason = %s, want %s", got.Reason, exceptions.ReasonMissingField)
	}
	if got.Detail != "vendor_name,total_amount" {
		t.Errorf("detail = %q, want %q", got.Detail, "vendor_name,total_amount")
	}
}

func TestCheckDateFormats(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		passed bool
	}{
		{name: "iso date", value: "2026-03-01", passed: true},
		{name: "rfc3339", value: "2026-03-01T00:00:00Z", passed: true},
		{name: "us slash date", value: "03/01/2026", passed: true},
		{name: "absent", value: "", passed: true},
		{name: "garbage", value: "March 1st", passed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := goodFields()
			fields[invoices.FieldInvoiceDate] = invoices.Field{Value: tt.value, Confidence: 1}

			got := checkDateFormats(ruleInput(fields))
			if got.Passed != tt.passed {
				t.Errorf("passed = %v, want %v (%s)", got.Passed, tt.passed, got.Detail)
			}
		})
	}
}

func TestCheckDateOrder(t *testing.T) {
	fields := goodFields()
	fields[invoices.FieldDueDate] = invoices.Field{Value: "2026-02-01", Confidence: 1}

	got := checkDateOrder(ruleInput(fields))
	if got.Passed {
		t.Error("due date before invoice date passed")
	}

	fields[invoices.FieldDueDate] = invoices.Field{Value: "not a date", Confidence: 1}
	if got := checkDateOrder(ruleInput(fields)); !got.Passed {
		t.Error("unparseable due date should defer to date_formats")
	}
}

func TestCheckAmountMath(t *testing.T) {
	items := []invoices.LineItem{
		{Description: "widgets", Quantity: 10, UnitCents: 10000, TotalCents: 100000},
		{Description: "shipping", Quantity: 1, UnitCents: 74250, TotalCents: 74250},
	}

	tests := []struct {
		name      string
		total     string
		tax       string
		tolerance int64
		passed    bool
	}{
		{name: "exact with tax", total: "1842.50", tax: "100.00", tolerance: 1, passed: true},
		{name: "within tolerance", total: "1742.51", tax: "", tolerance: 1, passed: true},
		{name: "beyond tolerance", total: "1745.00", tax: "", tolerance: 1, passed: false},
		{name: "unparseable total", total: "lots", tax: "", tolerance: 1, passed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := goodFields()
			fields[invoices.FieldTotalAmount] = invoices.Field{Value: tt.total, Confidence: 1}
			if tt.tax != "" {
				fields[invoices.FieldTaxAmount] = invoices.Field{Value: tt.tax, Confidence: 1}
			}

			got := checkAmountMath(ruleInput(fields, items...), tt.tolerance)
			if got.Passed != tt.passed {
				t.Errorf("passed = %v, want %v (%s)", got.Passed, tt.passed, got.Detail)
			}
		})
	}

	// No line items means nothing to reconcile against.
	fields := goodFields()
	if got := checkAmountMath(ruleInput(fields), 1); !got.Passed {
		t.Error("total without line items failed")
	}
}

func TestCheckTaxAmount(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		passed bool
	}{
		{name: "absent", value: "", passed: true},
		{name: "valid", value: "12.50", passed: true},
		{name: "negative", value: "-1.00", passed: false},
		{name: "unparseable", value: "some", passed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := goodFields()
			if tt.value != "" {
				fields[invoices.FieldTaxAmount] = invoices.Field{Value: tt.value, Confidence: 1}
			}
			got := checkTaxAmount(ruleInput(fields))
			if got.Passed != tt.passed {
				t.Errorf("passed = %v, want %v", got.Passed, tt.passed)
			}
		})
	}
}

func TestCheckCurrency(t *testing.T) {
	allowed := []string{"USD", "EUR"}

	tests := []struct {
		value  string
		passed bool
	}{
		{"USD", true},
		{"usd", true},
		{" eur ", true},
		{"", true},
		{"GBP", false},
	}

	for _, tt := range tests {
		fields := goodFields()
		fields[invoices.FieldCurrency] = invoices.Field{Value: tt.value, Confidence: 1}
		got := checkCurrency(ruleInput(fields), allowed)
		if got.Passed != tt.passed {
			t.Errorf("currency %q: passed = %v, want %v", tt.value, got.Passed, tt.passed)
		}
	}
}

func TestCheckPaymentTerms(t *testing.T) {
	tests := []struct {
		value  string
		passed bool
	}{
		{"Net 30", true},
		{"net 30", true},
		{"Due on Receipt", true},
		{"", true},
		{"net 31", false},
		{"cod", false},
	}

	for _, tt := range tests {
		fields := goodFields()
		fields[invoices.FieldPaymentTerms] = invoices.Field{Value: tt.value, Confidence: 1}
		got := checkPaymentTerms(ruleInput(fields))
		if got.Passed != tt.passed {
			t.Errorf("terms %q: passed = %v, want %v", tt.value, got.Passed, tt.passed)
		}
	}
}

func TestCheckPOFormat(t *testing.T) {
	tests := []struct {
		value  string
		passed bool
	}{
		{"", true},
		{"PO-12345", true},
		{"4500012345", true},
		{"PO/2026/001", true},
		{"PO 12345", false},
		{"-PO1", false},
	}

	for _, tt := range tests {
		fields := goodFields()
		if tt.value != "" {
			fields[invoices.FieldPONumber] = invoices.Field{Value: tt.value, Confidence: 1}
		}
		got := checkPOFormat(ruleInput(fields))
		if got.Passed != tt.passed {
			t.Errorf("po %q: passed = %v, want %v", tt.value, got.Passed, tt.passed)
		}
	}
}

func TestCheckPositiveTotal(t *testing.T) {
	tests := []struct {
		value  string
		passed bool
	}{
		{"1842.50", true},
		{"0.00", false},
		{"-10.00", false},
		{"unknown", true},
	}

	for _, tt := range tests {
		fields := goodFields()
		fields[invoices.FieldTotalAmount] = invoices.Field{Value: tt.value, Confidence: 1}
		got := checkPositiveTotal(ruleInput(fields))
		if got.Passed != tt.passed {
			t.Errorf("total %q: passed = %v, want %v", tt.value, got.Passed, tt.passed)
		}
	}
}

func TestCheckPeriodOpen(t *testing.T) {
	closed := []string{"2026-01", "2026-02"}

	tests := []struct {
		date   string
		passed bool
	}{
		{"2026-03-01", true},
		{"2026-02-15", false},
		{"01/10/2026", false},
		{"", true},
	}

	for _, tt := range tests {
		fields := goodFields()
		fields[invoices.FieldInvoiceDate] = invoices.Field{Value: tt.date, Confidence: 1}
		got := checkPeriodOpen(ruleInput(fields), closed)
		if got.Passed != tt.passed {
			t.Errorf("date %q: passed = %v, want %v", tt.date, got.Passed, tt.passed)
		}
	}
}

func TestCheckReference(t *testing.T) {
	tests := []struct {
		name       string
		hit        *invoices.ReferenceHit
		strategy   ingestion.Strategy
		window     time.Duration
		passed     bool
		wantReason exceptions.ReasonCode
	}{
		{
			name:     "no existing reference",
			strategy: ingestion.StrategyComposite,
			passed:   true,
		},
		{
			name:       "same total composite in window",
			hit:        &invoices.ReferenceHit{InvoiceID: uuid.New(), TotalValue: "1842.50", CreatedAt: time.Now().Add(-24 * time.Hour)},
			strategy:   ingestion.StrategyComposite,
			window:     30 * 24 * time.Hour,
			passed:     false,
			wantReason: exceptions.ReasonDuplicate,
		},
		{
			name:     "same total composite outside window",
			hit:      &invoices.ReferenceHit{InvoiceID: uuid.New(), TotalValue: "1842.50", CreatedAt: time.Now().Add(-90 * 24 * time.Hour)},
			strategy: ingestion.StrategyComposite,
			window:   30 * 24 * time.Hour,
			passed:   true,
		},
		{
			name:     "same total under file hash strategy",
			hit:      &invoices.ReferenceHit{InvoiceID: uuid.New(), TotalValue: "1842.50", CreatedAt: time.Now()},
			strategy: ingestion.StrategyFileHash,
			passed:   true,
		},
		{
			name:       "different total any strategy",
			hit:        &invoices.ReferenceHit{InvoiceID: uuid.New(), TotalValue: "900.00", CreatedAt: time.Now()},
			strategy:   ingestion.StrategyFileHash,
			passed:     false,
			wantReason: exceptions.ReasonReferenceMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.DedupStrategy = tt.strategy
			cfg.DedupWindow = tt.window

			e := testEngine(cfg, &fakeInvoices{hit: tt.hit}, nil, nil)

			got, err := e.checkReference(context.Background(), ruleInput(goodFields()))
			if err != nil {
				t.Fatalf("checkReference failed: %v", err)
			}
			if got.Passed != tt.passed {
				t.Fatalf("passed = %v, want %v (%s)", got.Passed, tt.passed, got.Detail)
			}
			if !tt.passed && got.Reason != string(tt.wantReason) {
				t.Errorf("reason = %s, want %s", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestRunBatteryDeterministic(t *testing.T) {
	e := testEngine(testConfig(), &fakeInvoices{vendorKnown: true}, nil, nil)
	e.WithRules(Rule{
		Name: "max_total",
		Check: func(ctx context.Context, in RuleInput) (bool, string) {
			total, err := ParseCents(in.Fields.Value(invoices.FieldTotalAmount))
			return err == nil && total < 1000000, ""
		},
	})

	in := ruleInput(goodFields())

	first, err := e.runBattery(context.Background(), in)
	if err != nil {
		t.Fatalf("battery failed: %v", err)
	}
	second, err := e.runBattery(context.Background(), in)
	if err != nil {
		t.Fatalf("battery failed: %v", err)
	}

	wantOrder := []string{
		"required_fields",
		"date_formats",
		"date_order",
		"amount_math",
		"tax_amount",
		"currency_allowed",
		"payment_terms",
		"vendor_known",
		"po_format",
		"reference_uniqueness",
		"positive_total",
		"period_open",
		"max_total",
	}

	if len(first) != len(wantOrder) {
		t.Fatalf("battery produced %d checks, want %d", len(first), len(wantOrder))
	}
	for i, want := range wantOrder {
		if first[i].Name != want {
			t.Errorf("check[%d] = %s, want %s", i, first[i].Name, want)
		}
		if first[i].Name != second[i].Name || first[i].Passed != second[i].Passed {
			t.Errorf("check %s differs between runs", want)
		}
		if !first[i].Passed {
			t.Errorf("check %s failed on clean input: %s", first[i].Name, first[i].Detail)
		}
	}

	// A custom rule without a reason code defaults to custom_rule.
	if got := first[len(first)-1].Reason; got != string(exceptions.ReasonCustomRule) {
		t.Errorf("custom rule reason = %s, want %s", got, exceptions.ReasonCustomRule)
	}
}

func TestValidateStageRecordsFailures(t *testing.T) {
	fields := goodFields()
	fields[invoices.FieldCurrency] = invoices.Field{Value: "GBP", Confidence: 1}
	delete(fields, invoices.FieldInvoiceNumber)

	inv := testInvoice()
	fake := &fakeInvoices{
		vendorKnown: true,
		extraction:  &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: fields},
	}
	exc := &fakeExceptions{}
	e := testEngine(testConfig(), fake, exc, nil)

	cp := Checkpoint{
		Stage: StageValidate,
		Parse: &ParseState{ExtractionID: uuid.New()},
		Patch: &PatchState{Fields: fields},
	}

	status, next, err := e.validate(context.Background(), inv, cp)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if status != invoices.StatusException {
		t.Errorf("status = %s, want %s", status, invoices.StatusException)
	}
	if next.Stage != StageException {
		t.Errorf("stage = %s, want %s", next.Stage, StageException)
	}
	if next.Validate == nil || next.Validate.Passed {
		t.Fatalf("validate state = %+v, want failed", next.Validate)
	}

	wantFailures := []string{"required_fields", "currency_allowed"}
	if len(next.Validate.Failures) != len(wantFailures) {
		t.Fatalf("failures = %v, want %v", next.Validate.Failures, wantFailures)
	}
	for i, want := range wantFailures {
		if next.Validate.Failures[i] != want {
			t.Errorf("failures[%d] = %s, want %s", i, next.Validate.Failures[i], want)
		}
	}

	// One exception per failed check, keyed to the rules version.
	if len(exc.created) != 2 {
		t.Fatalf("raised %d exceptions, want 2", len(exc.created))
	}
	if exc.created[0].Reason != exceptions.ReasonMissingField {
		t.Errorf("first exception reason = %s, want %s", exc.created[0].Reason, exceptions.ReasonMissingField)
	}
	if exc.created[0].DedupKey != "validate:test-1:required_fields" {
		t.Errorf("dedup key = %q", exc.created[0].DedupKey)
	}
	if len(fake.validations) != 1 {
		t.Fatalf("recorded %d validation results, want 1", len(fake.validations))
	}
}

func TestValidateStageBlockedByOpenException(t *testing.T) {
	fields := goodFields()
	inv := testInvoice()
	fake := &fakeInvoices{
		vendorKnown: true,
		extraction:  &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: fields},
	}
	exc := &fakeExceptions{open: 1}
	e := testEngine(testConfig(), fake, exc, nil)

	cp := Checkpoint{
		Stage: StageValidate,
		Parse: &ParseState{ExtractionID: uuid.New()},
		Patch: &PatchState{Fields: fields},
	}

	status, next, err := e.validate(context.Background(), inv, cp)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	// A clean battery does not outrank an unresolved exception: the invoice
	// stays blocked until the exception is resolved.
	if status != invoices.StatusException {
		t.Errorf("status = %s, want %s", status, invoices.StatusException)
	}
	if next.Stage != StageException {
		t.Errorf("stage = %s, want %s", next.Stage, StageException)
	}
	if next.Validate == nil || next.Validate.Passed {
		t.Fatalf("validate state = %+v, want failed verdict", next.Validate)
	}
	if len(next.Validate.Failures) != 0 {
		t.Errorf("failures = %v, want none from the battery", next.Validate.Failures)
	}
	if len(exc.created) != 0 {
		t.Errorf("raised %d new exceptions, want 0", len(exc.created))
	}
	if len(fake.validations) != 1 || fake.validations[0].Passed {
		t.Errorf("recorded validations = %+v, want one failed verdict", fake.validations)
	}
}

func TestValidateStagePasses(t *testing.T) {
	fields := goodFields()
	inv := testInvoice()
	fake := &fakeInvoices{
		vendorKnown: true,
		extraction:  &invoices.ExtractionResult{InvoiceID: inv.ID, Fields: fields},
	}
	e := testEngine(testConfig(), fake, &fakeExceptions{}, nil)

	cp := Checkpoint{
		Stage: StageValidate,
		Parse: &ParseState{ExtractionID: uuid.New()},
		Patch: &PatchState{Fields: fields},
	}

	status, next, err := e.validate(context.Background(), inv, cp)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	if status != invoices.StatusValidated {
		t.Errorf("status = %s, want %s", status, invoices.StatusValidated)
	}
	if next.Stage != StageTriage {
		t.Errorf("stage = %s, want %s", next.Stage, StageTriage)
	}
	if next.Validate == nil || !next.Validate.Passed {
		t.Errorf("validate state = %+v, want passed", next.Validate)
	}
}
