package idempotency

import (
	"errors"
	"net/http"
)

// Domain errors for ledger operations.
var (
	ErrNotFound  = errors.New("idempotency record not found")
	ErrDuplicate = errors.New("idempotency key already registered")
	// ErrInFlight is returned under the fail-fast conflict policy when the
	// same key is already executing. The caller should retry later.
	ErrInFlight = errors.New("operation with this idempotency key is in flight")
	// ErrExhausted is returned when a key has consumed its execution budget
	// without a cached success to replay.
	ErrExhausted = errors.New("idempotency key execution budget exhausted")
	ErrEmptyKey  = errors.New("idempotency key required")
)

// MapHTTPStatus maps ledger errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrInFlight) || errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrExhausted) {
		return http.StatusGone
	}
	if errors.Is(err, ErrEmptyKey) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
