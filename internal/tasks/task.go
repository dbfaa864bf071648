// Package tasks provides the durable task queue and worker pool that drive
// the workflow. One task is one stage transition: workers claim a task,
// advance the invoice a single stage, and enqueue a follow-up task while the
// pipeline has work left.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Task kinds.
const (
	// KindAdvanceStage executes the next workflow stage for an invoice.
	KindAdvanceStage = "advance_stage"
	// KindRedriveDeadLetter re-runs the stage captured by a dead letter.
	KindRedriveDeadLetter = "redrive_dead_letter"
)

// Task statuses.
const (
	StatusQueued    = "queued"
	StatusClaimed   = "claimed"
	StatusCompleted = "completed"
	// StatusDead marks a task whose retry budget is exhausted; a dead letter
	// entry holds its history.
	StatusDead = "dead"
)

// Task is one durable unit of work. Attempts counts claims, including the
// first; RunAt defers retries for backoff. Priority is inherited from the
// originating document and breaks claim-order ties ahead of age.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	Kind         string     `json:"kind"`
	InvoiceID    uuid.UUID  `json:"invoice_id"`
	DeadLetterID *uuid.UUID `json:"dead_letter_id,omitempty"`
	Status       string     `json:"status"`
	Priority     int        `json:"priority"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	RunAt        time.Time  `json:"run_at"`
	ClaimedBy    *string    `json:"claimed_by,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Exhausted reports whether the task has no retry budget left.
func (t *Task) Exhausted() bool {
	return t.Attempts >= t.MaxAttempts
}
