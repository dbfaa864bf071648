package workflow

import (
	"context"

	"github.com/JaimeStill/tally/internal/exceptions"
	"github.com/JaimeStill/tally/internal/invoices"
)

// patch runs confidence-gated enhancement. Only fields strictly below the
// threshold are submitted; a field exactly at threshold passes through
// untouched. Enhancement is best effort: a failed call degrades to the
// original fields and the pipeline continues.
func (e *Engine) patch(ctx context.Context, inv *invoices.Invoice, cp Checkpoint) (string, Checkpoint, error) {
	ext, err := e.invoices.LatestExtraction(ctx, inv.ID)
	if err != nil {
		return "", cp, transient(StagePatch, err)
	}

	fields := ext.Fields
	state := &PatchState{Fields: fields}

	low := fields.Below(e.cfg.ConfidenceThreshold)
	if len(low) > 0 {
		subset := make(invoices.FieldSet, len(low))
		for _, k := range low {
			subset[k] = fields[k]
		}

		enhanced, err := e.enhancer.Enhance(ctx, subset, fields)
		if err != nil {
			e.logger.Warn("enhancement degraded", "invoice", inv.ID, "fields", low, "error", err)
			state.Degraded = true
		} else {
			accepted := make(invoices.FieldSet, len(enhanced))
			// Sorted keys keep the recorded checkpoint identical across
			// re-runs of the same enhancement.
			for _, k := range enhanced.Keys() {
				f := enhanced[k]
				// Never accept a revision that lowers confidence.
				if f.Confidence >= fields[k].Confidence {
					accepted[k] = f
					state.Enhanced = append(state.Enhanced, k)
				}
			}
			state.Fields = fields.Merge(accepted)
		}
	}

	if still := state.Fields.Below(e.cfg.ConfidenceThreshold); len(still) > 0 {
		if err := e.raise(ctx, inv.ID, exceptions.ReasonLowConfidence,
			"patch:"+inv.ID.String(),
			map[string]any{"fields": still, "degraded": state.Degraded},
		); err != nil {
			return "", cp, transient(StagePatch, err)
		}
	}

	cp.Patch = state
	cp.Stage = StageValidate
	return invoices.StatusParsed, cp, nil
}
