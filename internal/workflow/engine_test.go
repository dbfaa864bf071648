package workflow

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/exceptions"
	"github.com/JaimeStill/tally/internal/ingestion"
	"github.com/JaimeStill/tally/internal/invoices"
)

// fakeInvoices overrides only the invoice operations a stage under test
// reaches for; anything else panics through the nil embedded interface.
type fakeInvoices struct {
	invoices.System

	extraction  *invoices.ExtractionResult
	validations []*invoices.ValidationResult
	vendorKnown bool
	hit         *invoices.ReferenceHit

	exports map[string]*invoices.StagedExport
	settled []settledExport
}

type settledExport struct {
	ID            uuid.UUID
	Status        string
	DestinationID *string
	ErrorDetail   *string
}

func (f *fakeInvoices) LatestExtraction(ctx context.Context, invoiceID uuid.UUID) (*invoices.ExtractionResult, error) {
	if f.extraction == nil {
		return nil, invoices.ErrNoExtraction
	}
	return f.extraction, nil
}

func (f *fakeInvoices) RecordValidation(ctx context.Context, result *invoices.ValidationResult) (*invoices.ValidationResult, error) {
	result.ID = uuid.New()
	f.validations = append(f.validations, result)
	return result, nil
}

func (f *fakeInvoices) VendorKnown(ctx context.Context, vendorName string, exclude uuid.UUID) (bool, error) {
	return f.vendorKnown, nil
}

func (f *fakeInvoices) ReferenceMatch(ctx context.Context, vendorName, invoiceNumber string, exclude uuid.UUID) (*invoices.ReferenceHit, error) {
	return f.hit, nil
}

func (f *fakeInvoices) CreateExport(ctx context.Context, export *invoices.StagedExport) (*invoices.StagedExport, error) {
	if f.exports == nil {
		f.exports = map[string]*invoices.StagedExport{}
	}
	if _, ok := f.exports[export.IdempotencyKey]; ok {
		return nil, invoices.ErrDuplicate
	}
	export.ID = uuid.New()
	export.Status = invoices.ExportPrepared
	f.exports[export.IdempotencyKey] = export
	return export, nil
}

func (f *fakeInvoices) FindExportByKey(ctx context.Context, idempotencyKey string) (*invoices.StagedExport, error) {
	export, ok := f.exports[idempotencyKey]
	if !ok {
		return nil, invoices.ErrNotFound
	}
	return export, nil
}

func (f *fakeInvoices) SettleExport(ctx context.Context, id uuid.UUID, status string, destinationID, errorDetail *string) error {
	f.settled = append(f.settled, settledExport{ID: id, Status: status, DestinationID: destinationID, ErrorDetail: errorDetail})
	return nil
}

type fakeExceptions struct {
	exceptions.System

	open    int
	created []exceptions.CreateCommand
}

func (f *fakeExceptions) Create(ctx context.Context, cmd exceptions.CreateCommand) (*exceptions.Exception, error) {
	f.created = append(f.created, cmd)
	return &exceptions.Exception{
		ID:        uuid.New(),
		InvoiceID: cmd.InvoiceID,
		Reason:    cmd.Reason,
		Severity:  exceptions.SeverityFor(cmd.Reason),
	}, nil
}

func (f *fakeExceptions) OpenCount(ctx context.Context, invoiceID uuid.UUID) (int, error) {
	return f.open, nil
}

type fakeEnhancer struct {
	result invoices.FieldSet
	err    error
	calls  int
	lastLo invoices.FieldSet
}

func (f *fakeEnhancer) Enhance(ctx context.Context, low, full invoices.FieldSet) (invoices.FieldSet, error) {
	f.calls++
	f.lastLo = low
	return f.result, f.err
}

func testConfig() Config {
	return Config{
		ConfidenceThreshold:  0.8,
		AutoApproveThreshold: 0.9,
		AmountToleranceCents: 1,
		AllowedCurrencies:    []string{"USD"},
		RulesVersion:         "test-1",
		DedupStrategy:        ingestion.StrategyFileHash,
	}
}

func testEngine(cfg Config, inv *fakeInvoices, exc *fakeExceptions, enh *fakeEnhancer) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if inv != nil {
		e.invoices = inv
	}
	if exc != nil {
		e.exceptions = exc
	}
	if enh != nil {
		e.enhancer = enh
	}
	return e
}

func testInvoice() *invoices.Invoice {
	return &invoices.Invoice{ID: uuid.New(), Status: invoices.StatusParsed}
}

// goodFields builds a field set that clears the full validation battery.
func goodFields() invoices.FieldSet {
	return invoices.FieldSet{
		invoices.FieldVendorName:    {Value: "Acme Corp", Confidence: 0.97, Origin: invoices.OriginExtracted},
		invoices.FieldInvoiceNumber: {Value: "INV-1001", Confidence: 0.95, Origin: invoices.OriginExtracted},
		invoices.FieldInvoiceDate:   {Value: "2026-03-01", Confidence: 0.96, Origin: invoices.OriginExtracted},
		invoices.FieldDueDate:       {Value: "2026-03-31", Confidence: 0.94, Origin: invoices.OriginExtracted},
		invoices.FieldCurrency:      {Value: "USD", Confidence: 0.99, Origin: invoices.OriginExtracted},
		invoices.FieldTotalAmount:   {Value: "1842.50", Confidence: 0.93, Origin: invoices.OriginExtracted},
		invoices.FieldPaymentTerms:  {Value: "Net 30", Confidence: 0.92, Origin: invoices.OriginExtracted},
	}
}
