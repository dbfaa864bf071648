// Package deadletter captures workflow tasks that exhausted their retry
// budget and supports operator-driven redrive back onto the task queue.
package deadletter

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Dead letter statuses.
const (
	StatusPending           = "pending"
	StatusRedriving         = "redriving"
	StatusCompleted         = "completed"
	StatusFailedPermanently = "failed_permanently"
	StatusArchived          = "archived"
)

// maxRedrives is the number of failed redrives after which an entry is
// flagged for manual intervention.
const maxRedrives = 3

// Entry is one dead-lettered task. TaskID is unique: re-capturing the same
// task after a failed redrive updates the existing entry rather than creating
// a second one.
type Entry struct {
	ID                 uuid.UUID       `json:"id"`
	TaskID             uuid.UUID       `json:"task_id"`
	InvoiceID          uuid.UUID       `json:"invoice_id"`
	Stage              string          `json:"stage"`
	Category           Category        `json:"category"`
	Error              string          `json:"error"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	Attempts           int             `json:"attempts"`
	Priority           int             `json:"priority"`
	RedriveCount       int             `json:"redrive_count"`
	History            json.RawMessage `json:"history,omitempty"`
	ManualIntervention bool            `json:"manual_intervention"`
	Status             string          `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// HistoryRecord is one redrive attempt in an entry's history log.
type HistoryRecord struct {
	RedrivenAt time.Time `json:"redriven_at"`
	RedrivenBy string    `json:"redriven_by"`
	Outcome    string    `json:"outcome,omitempty"`
}

// CaptureCommand records a task whose retries are exhausted. Priority is the
// captured task's document priority, kept so a redrive re-enters the queue
// with the same ordering weight.
type CaptureCommand struct {
	TaskID    uuid.UUID
	InvoiceID uuid.UUID
	Stage     string
	Err       error
	Payload   json.RawMessage
	Attempts  int
	Priority  int
}
