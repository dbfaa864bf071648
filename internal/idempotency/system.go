package idempotency

import (
	"context"
	"encoding/json"
	"time"
)

// ConflictPolicy controls behavior when a key is already in flight.
type ConflictPolicy string

// Conflict policies.
const (
	// ConflictFail returns ErrInFlight immediately.
	ConflictFail ConflictPolicy = "fail"
	// ConflictWait polls until the in-flight execution settles, then replays
	// its result.
	ConflictWait ConflictPolicy = "wait"
)

// Config holds ledger behavior settings.
type Config struct {
	Policy        ConflictPolicy
	TTL           time.Duration
	MaxExecutions int
	WaitInterval  time.Duration
}

// OperationFunc executes the guarded side effects and returns a JSON result
// to cache for replays.
type OperationFunc func(ctx context.Context) (json.RawMessage, error)

// System defines the public contract of the idempotency ledger.
type System interface {
	// Execute runs fn at most once for the given key (subject to
	// MaxExecutions after failures). The boolean result reports whether the
	// returned payload was replayed from the ledger rather than produced by
	// this call.
	Execute(ctx context.Context, key string, op Operation, fn OperationFunc) (json.RawMessage, bool, error)

	Find(ctx context.Context, key string) (*Record, error)

	// Purge deletes expired records and returns the number removed.
	Purge(ctx context.Context) (int64, error)
}
