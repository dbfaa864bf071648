package exceptions

import (
	"errors"
	"net/http"
)

// Domain errors for exception operations.
var (
	ErrNotFound        = errors.New("exception not found")
	ErrDuplicate       = errors.New("exception already recorded")
	ErrAlreadyResolved = errors.New("exception already resolved")
	ErrInvalidReason   = errors.New("reason code outside taxonomy")
)

// MapHTTPStatus maps exception domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrAlreadyResolved) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidReason) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
