// Package invoices implements the invoice domain for Tally. An Invoice is
// the canonical business record derived from an ingested file, distinct from
// the raw upload tracked by the ingestion package. Invoices are mutated
// exclusively through workflow stage transitions committed with an optimistic
// version check, and are never physically deleted.
package invoices

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Invoice statuses. The progression is linear with branches: exception is a
// blocked branch awaiting resolution, and done is terminal.
const (
	StatusReceived  = "received"
	StatusParsed    = "parsed"
	StatusValidated = "validated"
	StatusException = "exception"
	StatusReady     = "ready"
	StatusStaged    = "staged"
	StatusDone      = "done"
	// StatusArchived marks an invoice superseded by a duplicate resolution.
	StatusArchived = "archived"
)

// Invoice is the central processing record. Fingerprint drives deduplication;
// Version drives optimistic claim/commit; Checkpoint holds the opaque
// serialized workflow state sufficient to resume processing after a crash or
// a multi-day human-review pause.
type Invoice struct {
	ID            uuid.UUID       `json:"id"`
	Fingerprint   string          `json:"fingerprint"`
	Filename      string          `json:"filename"`
	ContentType   string          `json:"content_type"`
	StorageKey    string          `json:"storage_key"`
	Priority      int             `json:"priority"`
	Status        string          `json:"status"`
	WorkflowState string          `json:"workflow_state"`
	Checkpoint    json.RawMessage `json:"checkpoint,omitempty"`
	Version       int             `json:"version"`
	ClaimedBy     *string         `json:"claimed_by,omitempty"`
	ClaimExpires  *time.Time      `json:"claim_expires,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CreateCommand carries the data needed to register a new invoice from a
// resolved ingestion job. New invoices always start in the initial workflow
// state; the database supplies the starting checkpoint. Priority carries the
// upload's processing priority through the rest of the pipeline.
type CreateCommand struct {
	Fingerprint string
	Filename    string
	ContentType string
	StorageKey  string
	Priority    int
}

// TransitionCommand commits the outcome of one workflow stage. Version must
// match the claimed invoice's version; a mismatch means another worker won
// the race and the losing commit aborts without side effects.
type TransitionCommand struct {
	ID            uuid.UUID
	Version       int
	Status        string
	WorkflowState string
	Checkpoint    json.RawMessage
}

// ReviewSummary is the projection returned to the human-review interface.
type ReviewSummary struct {
	ID            uuid.UUID `json:"id"`
	Filename      string    `json:"filename"`
	Status        string    `json:"status"`
	WorkflowState string    `json:"workflow_state"`
	SuspendedAt   time.Time `json:"suspended_at"`
}
