package workflow

import (
	"context"
	"time"

	"github.com/JaimeStill/tally/internal/invoices"
)

// triage routes a validated invoice. Auto-approval demands that every field
// clears the auto-approve threshold: the aggregate is the minimum confidence,
// with no partial credit. Anything less suspends the invoice for human
// review.
func (e *Engine) triage(ctx context.Context, inv *invoices.Invoice, cp Checkpoint) (string, Checkpoint, error) {
	min := cp.WorkingFields().MinConfidence()

	cp.Triage = &TriageState{
		AutoApproved:  min >= e.cfg.AutoApproveThreshold,
		MinConfidence: min,
	}

	if cp.Triage.AutoApproved {
		cp.Stage = StageStageExport
		return invoices.StatusReady, cp, nil
	}

	cp.Review = &ReviewState{
		Reason:      "confidence below auto-approve threshold",
		SuspendedAt: time.Now().UTC(),
	}
	cp.Stage = StageHumanReview
	return invoices.StatusValidated, cp, nil
}
