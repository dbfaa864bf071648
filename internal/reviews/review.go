// Package reviews implements the human review surface: listing suspended
// invoices and applying operator decisions that resume, reject, or hold
// them.
package reviews

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/invoices"
)

// Review decisions.
const (
	// DecisionContinue merges corrections and resumes at validation.
	DecisionContinue = "continue"
	// DecisionReject closes the invoice with an approval exception.
	DecisionReject = "reject"
	// DecisionRequestInfo keeps the invoice suspended and logs the request.
	DecisionRequestInfo = "request_more_info"
)

// DecideCommand carries an operator's decision on a suspended invoice.
type DecideCommand struct {
	InvoiceID   uuid.UUID
	Decision    string
	Corrections invoices.FieldSet
	Note        string
	DecidedBy   string
}

// Domain errors for review operations.
var (
	ErrInvalidDecision = errors.New("invalid review decision")
	// ErrNotSuspended signals a decision against an invoice that is not in
	// human review.
	ErrNotSuspended = errors.New("invoice is not suspended for review")
)

// MapHTTPStatus maps review domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidDecision):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotSuspended):
		return http.StatusConflict
	case errors.Is(err, invoices.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, invoices.ErrClaimed), errors.Is(err, invoices.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
