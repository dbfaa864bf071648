package ingestion

import (
	"errors"
	"net/http"
)

// Domain errors for ingestion operations.
var (
	ErrNotFound        = errors.New("ingestion job not found")
	ErrDuplicate       = errors.New("ingestion job already exists")
	ErrEmptyUpload     = errors.New("upload contains no data")
	ErrInvalidStrategy = errors.New("invalid deduplication strategy")
	ErrInvalidAction   = errors.New("invalid deduplication action")
	// ErrNotReviewable signals a resolve attempt against a job that is not
	// held in require_review.
	ErrNotReviewable = errors.New("ingestion job is not awaiting review")
)

// MapHTTPStatus maps ingestion domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrNotReviewable):
		return http.StatusConflict
	case errors.Is(err, ErrEmptyUpload), errors.Is(err, ErrInvalidStrategy), errors.Is(err, ErrInvalidAction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
