package workflow

import (
	"context"
	"testing"

	"github.com/JaimeStill/tally/internal/invoices"
)

func triageCheckpoint(fields invoices.FieldSet) Checkpoint {
	return Checkpoint{
		Stage:    StageTriage,
		Patch:    &PatchState{Fields: fields},
		Validate: &ValidateState{Passed: true},
	}
}

func TestTriageAutoApproves(t *testing.T) {
	e := testEngine(testConfig(), nil, nil, nil)

	tests := []struct {
		name    string
		lowest  float64
		approve bool
	}{
		{name: "well above threshold", lowest: 0.97, approve: true},
		{name: "exactly at threshold", lowest: 0.9, approve: true},
		{name: "just below threshold", lowest: 0.89, approve: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := goodFields()
			fields[invoices.FieldTotalAmount] = invoices.Field{Value: "1842.50", Confidence: tt.lowest}

			status, next, err := e.triage(context.Background(), testInvoice(), triageCheckpoint(fields))
			if err != nil {
				t.Fatalf("triage failed: %v", err)
			}

			if next.Triage == nil {
				t.Fatal("triage state not recorded")
			}
			if next.Triage.MinConfidence != tt.lowest {
				t.Errorf("min confidence = %v, want %v", next.Triage.MinConfidence, tt.lowest)
			}

			if tt.approve {
				if next.Stage != StageStageExport || status != invoices.StatusReady {
					t.Errorf("got %s/%s, want %s/%s", next.Stage, status, StageStageExport, invoices.StatusReady)
				}
				if next.Review != nil {
					t.Error("approved invoice carries review state")
				}
			} else {
				if next.Stage != StageHumanReview || status != invoices.StatusValidated {
					t.Errorf("got %s/%s, want %s/%s", next.Stage, status, StageHumanReview, invoices.StatusValidated)
				}
				if next.Review == nil || next.Review.SuspendedAt.IsZero() {
					t.Errorf("review state = %+v, want suspended", next.Review)
				}
			}
		})
	}
}

func TestTriageEmptyFieldsAutoApproves(t *testing.T) {
	e := testEngine(testConfig(), nil, nil, nil)

	_, next, err := e.triage(context.Background(), testInvoice(), triageCheckpoint(invoices.FieldSet{}))
	if err != nil {
		t.Fatalf("triage failed: %v", err)
	}
	if !next.Triage.AutoApproved || next.Triage.MinConfidence != 1 {
		t.Errorf("triage state = %+v, want auto-approved at 1.0", next.Triage)
	}
}
