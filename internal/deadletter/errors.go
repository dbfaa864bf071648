package deadletter

import (
	"errors"
	"net/http"
)

// Domain errors for dead letter operations.
var (
	ErrNotFound  = errors.New("dead letter not found")
	ErrDuplicate = errors.New("dead letter already exists")
	// ErrNotRedrivable signals a redrive attempt against an entry that is not
	// pending, or one flagged for manual intervention.
	ErrNotRedrivable = errors.New("dead letter is not redrivable")
)

// MapHTTPStatus maps dead letter domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrNotRedrivable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
