package deadletter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Category buckets a captured failure for triage and reporting.
type Category string

// Failure categories.
const (
	CategoryProcessing   Category = "processing"
	CategoryValidation   Category = "validation"
	CategoryNetwork      Category = "network"
	CategoryDatabase     Category = "database"
	CategoryTimeout      Category = "timeout"
	CategoryBusinessRule Category = "business_rule"
	CategorySystem       Category = "system"
	CategoryUnknown      Category = "unknown"
)

// CategoryError carries an explicit failure category through error wrapping.
// Stage executors tag errors whose category the classifier cannot infer from
// the error type alone.
type CategoryError struct {
	Cat Category
	Err error
}

func (e *CategoryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Cat, e.Err)
}

func (e *CategoryError) Unwrap() error {
	return e.Err
}

// WithCategory tags an error with a failure category.
func WithCategory(cat Category, err error) error {
	return &CategoryError{Cat: cat, Err: err}
}

// Classify buckets an error. Explicit tags win; otherwise the error chain is
// inspected for timeouts, network failures, and database failures.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var tagged *CategoryError
	if errors.As(err, &tagged) {
		return tagged.Cat
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return CategoryDatabase
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return CategoryDatabase
	}

	return CategoryUnknown
}
