package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/JaimeStill/tally/internal/deadletter"
	"github.com/JaimeStill/tally/internal/invoices"
	"github.com/JaimeStill/tally/pkg/storage"
)

// parse runs extraction against the stored file and records the result.
// Extraction results are append-only: a re-run after a crash between record
// and commit produces a superseding result rather than corrupting the first.
func (e *Engine) parse(ctx context.Context, inv *invoices.Invoice, cp Checkpoint) (string, Checkpoint, error) {
	reader, err := e.store.Download(ctx, inv.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", cp, fatal(StageParse, fmt.Errorf("blob %s missing: %w", inv.StorageKey, err))
		}
		return "", cp, transient(StageParse, err)
	}
	defer reader.Close()

	result, err := e.extractor.Extract(ctx, inv.Filename, inv.ContentType, reader)
	if err != nil {
		return "", cp, transient(StageParse, deadletter.WithCategory(deadletter.CategoryProcessing, err))
	}

	recorded, err := e.invoices.RecordExtraction(ctx, &invoices.ExtractionResult{
		InvoiceID:        inv.ID,
		Fields:           result.Fields,
		LineItems:        result.LineItems,
		ExtractorVersion: result.ExtractorVersion,
		DurationMS:       result.DurationMS,
	})
	if err != nil {
		return "", cp, transient(StageParse, err)
	}

	cp.Parse = &ParseState{
		ExtractionID:     recorded.ID,
		ExtractorVersion: recorded.ExtractorVersion,
	}
	cp.Stage = StagePatch
	return invoices.StatusParsed, cp, nil
}
