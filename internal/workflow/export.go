package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JaimeStill/tally/internal/deadletter"
	"github.com/JaimeStill/tally/internal/idempotency"
	"github.com/JaimeStill/tally/internal/invoices"
)

// exportPayload is the document shape posted to the export destination.
type exportPayload struct {
	InvoiceID string      `json:"invoice_id"`
	Filename  string      `json:"filename"`
	Fields    fieldValues `json:"fields"`
	LineItems []lineValue `json:"line_items,omitempty"`
}

type fieldValues map[string]string

type lineValue struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitCents   int64   `json:"unit_cents"`
	TotalCents  int64   `json:"total_cents"`
}

// stageExport runs in two committed phases. The first phase stages the
// payload and durably pins the idempotency key in the checkpoint before
// anything leaves the system. The second phase posts through the ledger, so
// a re-run after a crash replays the recorded result instead of posting
// twice.
func (e *Engine) stageExport(ctx context.Context, inv *invoices.Invoice, cp Checkpoint) (string, Checkpoint, error) {
	if cp.Export == nil {
		return e.stagePayload(ctx, inv, cp)
	}
	return e.postStaged(ctx, inv, cp)
}

func (e *Engine) stagePayload(ctx context.Context, inv *invoices.Invoice, cp Checkpoint) (string, Checkpoint, error) {
	ext, err := e.invoices.LatestExtraction(ctx, inv.ID)
	if err != nil {
		return "", cp, transient(StageStageExport, err)
	}

	fields := cp.WorkingFields()
	values := make(fieldValues, len(fields))
	for _, k := range fields.Keys() {
		values[k] = fields[k].Value
	}

	lines := make([]lineValue, len(ext.LineItems))
	for i, li := range ext.LineItems {
		lines[i] = lineValue(li)
	}

	payload, err := json.Marshal(exportPayload{
		InvoiceID: inv.ID.String(),
		Filename:  inv.Filename,
		Fields:    values,
		LineItems: lines,
	})
	if err != nil {
		return "", cp, fatal(StageStageExport, err)
	}

	key := fmt.Sprintf("export:%s", inv.ID)

	staged, err := e.invoices.CreateExport(ctx, &invoices.StagedExport{
		InvoiceID:      inv.ID,
		Payload:        payload,
		Format:         "json",
		IdempotencyKey: key,
	})
	if err != nil {
		// A prior run staged this export before its commit was lost.
		if errors.Is(err, invoices.ErrDuplicate) {
			staged, err = e.invoices.FindExportByKey(ctx, key)
		}
		if err != nil {
			return "", cp, transient(StageStageExport, err)
		}
	}

	cp.Export = &ExportState{
		ExportID:       staged.ID,
		IdempotencyKey: staged.IdempotencyKey,
	}
	return invoices.StatusStaged, cp, nil
}

func (e *Engine) postStaged(ctx context.Context, inv *invoices.Invoice, cp Checkpoint) (string, Checkpoint, error) {
	staged, err := e.invoices.FindExportByKey(ctx, cp.Export.IdempotencyKey)
	if err != nil {
		return "", cp, transient(StageStageExport, err)
	}

	result, _, err := e.ledger.Execute(
		ctx, staged.IdempotencyKey, idempotency.OpExportPost,
		func(opCtx context.Context) (json.RawMessage, error) {
			destination, err := e.exporter.Post(opCtx, staged.IdempotencyKey, staged.Payload)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"destination_id": destination})
		},
	)
	if err != nil {
		detail := err.Error()
		if settleErr := e.invoices.SettleExport(
			context.WithoutCancel(ctx), staged.ID, invoices.ExportFailed, nil, &detail,
		); settleErr != nil {
			e.logger.Warn("settle failed export", "invoice", inv.ID, "error", settleErr)
		}
		return "", cp, transient(StageStageExport, deadletter.WithCategory(deadletter.CategoryNetwork, err))
	}

	var posted struct {
		DestinationID string `json:"destination_id"`
	}
	if err := json.Unmarshal(result, &posted); err != nil {
		return "", cp, fatal(StageStageExport, err)
	}

	settleCtx := context.WithoutCancel(ctx)
	if err := e.invoices.SettleExport(settleCtx, staged.ID, invoices.ExportSent, &posted.DestinationID, nil); err != nil {
		return "", cp, transient(StageStageExport, err)
	}

	cp.Export.DestinationID = &posted.DestinationID
	cp.Stage = StageDone
	return invoices.StatusDone, cp, nil
}
