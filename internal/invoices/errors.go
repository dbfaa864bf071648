package invoices

import (
	"errors"
	"net/http"
)

// Domain errors for invoice operations.
var (
	ErrNotFound  = errors.New("invoice not found")
	ErrDuplicate = errors.New("invoice already exists")
	// ErrVersionConflict signals a lost optimistic-claim race: another worker
	// committed a transition first. The losing caller must abort without side
	// effects.
	ErrVersionConflict = errors.New("invoice version conflict")
	// ErrClaimed signals the invoice is held by a live processing claim.
	ErrClaimed      = errors.New("invoice claimed by another worker")
	ErrNoExtraction = errors.New("no extraction result recorded")
	ErrNoValidation = errors.New("no validation result recorded")
)

// MapHTTPStatus maps invoice domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoExtraction) || errors.Is(err, ErrNoValidation) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrClaimed) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
