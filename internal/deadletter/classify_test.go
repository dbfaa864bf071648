package deadletter_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JaimeStill/tally/internal/deadletter"
)

// timeoutErr satisfies net.Error for classifier tests.
type timeoutErr struct{ timeout bool }

func (e *timeoutErr) Error() string   { return "dial tcp: connection failed" }
func (e *timeoutErr) Timeout() bool   { return e.timeout }
func (e *timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want deadletter.Category
	}{
		{
			name: "nil",
			err:  nil,
			want: deadletter.CategoryUnknown,
		},
		{
			name: "explicit tag wins",
			err:  deadletter.WithCategory(deadletter.CategoryProcessing, errors.New("extractor returned nothing")),
			want: deadletter.CategoryProcessing,
		},
		{
			name: "wrapped explicit tag",
			err:  fmt.Errorf("stage parse: %w", deadletter.WithCategory(deadletter.CategoryBusinessRule, errors.New("rule failed"))),
			want: deadletter.CategoryBusinessRule,
		},
		{
			name: "context deadline",
			err:  fmt.Errorf("extract: %w", context.DeadlineExceeded),
			want: deadletter.CategoryTimeout,
		},
		{
			name: "network timeout",
			err:  fmt.Errorf("post: %w", &timeoutErr{timeout: true}),
			want: deadletter.CategoryTimeout,
		},
		{
			name: "network failure",
			err:  fmt.Errorf("post: %w", &timeoutErr{}),
			want: deadletter.CategoryNetwork,
		},
		{
			name: "postgres error",
			err:  fmt.Errorf("query: %w", &pgconn.PgError{Code: "23505"}),
			want: deadletter.CategoryDatabase,
		},
		{
			name: "closed connection",
			err:  fmt.Errorf("commit: %w", sql.ErrConnDone),
			want: deadletter.CategoryDatabase,
		},
		{
			name: "closed transaction",
			err:  sql.ErrTxDone,
			want: deadletter.CategoryDatabase,
		},
		{
			name: "untagged",
			err:  errors.New("something else"),
			want: deadletter.CategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deadletter.Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCategoryErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := deadletter.WithCategory(deadletter.CategorySystem, cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable through errors.Is")
	}

	var tagged *deadletter.CategoryError
	if !errors.As(err, &tagged) {
		t.Fatal("errors.As failed to find CategoryError")
	}
	if tagged.Cat != deadletter.CategorySystem {
		t.Errorf("category = %s, want %s", tagged.Cat, deadletter.CategorySystem)
	}
}
