// Package idempotency implements the operation ledger for Tally.
// Every externally triggered write operation runs through the ledger keyed by
// a caller-supplied idempotency key, guaranteeing its side effects execute at
// most max_executions times (default 1) across retries and crash recovery.
package idempotency

import (
	"encoding/json"
	"time"
)

// Operation identifies the logical operation class an idempotency key guards.
type Operation string

// Guarded operation classes.
const (
	OpUpload           Operation = "upload"
	OpProcess          Operation = "process"
	OpExportStage      Operation = "export_stage"
	OpExportPost       Operation = "export_post"
	OpExceptionResolve Operation = "exception_resolve"
	OpBatch            Operation = "batch"
)

// Record statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Record is one ledger entry. A completed record caches the operation result
// so replays return it without re-executing side effects.
type Record struct {
	Key            string          `json:"key"`
	Operation      Operation       `json:"operation"`
	Status         string          `json:"status"`
	ExecutionCount int             `json:"execution_count"`
	MaxExecutions  int             `json:"max_executions"`
	Result         json.RawMessage `json:"result,omitempty"`
	LastError      *string         `json:"last_error,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Expired reports whether the record's retention window has passed.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
