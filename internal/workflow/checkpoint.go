package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/invoices"
)

// Checkpoint is the durable workflow state stored on the invoice. Stage names
// the next stage to execute; the remaining sections accumulate as stages
// complete, so resuming at any stage finds every input it needs without
// re-running earlier work.
type Checkpoint struct {
	Stage    Stage          `json:"stage"`
	Receive  *ReceiveState  `json:"receive,omitempty"`
	Parse    *ParseState    `json:"parse,omitempty"`
	Patch    *PatchState    `json:"patch,omitempty"`
	Validate *ValidateState `json:"validate,omitempty"`
	Triage   *TriageState   `json:"triage,omitempty"`
	Export   *ExportState   `json:"export,omitempty"`
	Review   *ReviewState   `json:"review,omitempty"`
}

// ReceiveState records file verification results.
type ReceiveState struct {
	SizeBytes  int64     `json:"size_bytes"`
	PageCount  int       `json:"page_count"`
	VerifiedAt time.Time `json:"verified_at"`
}

// ParseState records the extraction attempt that produced the working fields.
type ParseState struct {
	ExtractionID     uuid.UUID `json:"extraction_id"`
	ExtractorVersion string    `json:"extractor_version"`
}

// PatchState holds the working field set after confidence-gated enhancement.
// Degraded marks a failed enhancement call that the pipeline continued past
// with the original fields.
type PatchState struct {
	Fields   invoices.FieldSet `json:"fields"`
	Enhanced []string          `json:"enhanced,omitempty"`
	Degraded bool              `json:"degraded,omitempty"`
}

// ValidateState records the validation pass outcome.
type ValidateState struct {
	ValidationID uuid.UUID `json:"validation_id"`
	Passed       bool      `json:"passed"`
	Failures     []string  `json:"failures,omitempty"`
}

// TriageState records the routing decision after validation.
type TriageState struct {
	AutoApproved  bool    `json:"auto_approved"`
	MinConfidence float64 `json:"min_confidence"`
}

// ExportState pins the export attempt so a re-run reuses the same staged
// payload and idempotency key instead of minting new ones.
type ExportState struct {
	ExportID       uuid.UUID `json:"export_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	DestinationID  *string   `json:"destination_id,omitempty"`
}

// ReviewState accumulates the human review conversation while the invoice is
// suspended.
type ReviewState struct {
	Reason      string            `json:"reason"`
	SuspendedAt time.Time         `json:"suspended_at"`
	Requests    []string          `json:"requests,omitempty"`
	Corrections invoices.FieldSet `json:"corrections,omitempty"`
}

// DecodeCheckpoint parses a stored checkpoint. An empty checkpoint decodes to
// the initial receive stage.
func DecodeCheckpoint(raw json.RawMessage) (Checkpoint, error) {
	if len(raw) == 0 {
		return Checkpoint{Stage: StageReceive}, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.Stage == "" {
		cp.Stage = StageReceive
	}

	return cp, cp.Check()
}

// Encode serializes the checkpoint for storage.
func (cp Checkpoint) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return raw, nil
}

// Check verifies that the checkpoint carries every section its stage
// depends on. A checkpoint that fails this cannot be executed and the task
// that loaded it is a permanent failure.
func (cp Checkpoint) Check() error {
	if !cp.Stage.Valid() {
		return fmt.Errorf("unknown stage %q", cp.Stage)
	}

	requireParse := func() error {
		if cp.Parse == nil {
			return fmt.Errorf("stage %s requires parse state", cp.Stage)
		}
		return nil
	}
	requirePatch := func() error {
		if cp.Patch == nil {
			return fmt.Errorf("stage %s requires patch state", cp.Stage)
		}
		return nil
	}

	switch cp.Stage {
	case StagePatch:
		return requireParse()
	case StageValidate:
		if err := requireParse(); err != nil {
			return err
		}
		return requirePatch()
	case StageTriage:
		if err := requirePatch(); err != nil {
			return err
		}
		if cp.Validate == nil {
			return fmt.Errorf("stage %s requires validate state", cp.Stage)
		}
	case StageStageExport:
		return requirePatch()
	case StageHumanReview:
		if err := requirePatch(); err != nil {
			return err
		}
		if cp.Review == nil {
			return fmt.Errorf("stage %s requires review state", cp.Stage)
		}
	}

	return nil
}

// WorkingFields returns the field set later stages operate on: the patched
// fields once patch has run.
func (cp Checkpoint) WorkingFields() invoices.FieldSet {
	if cp.Patch == nil {
		return nil
	}
	return cp.Patch.Fields
}
