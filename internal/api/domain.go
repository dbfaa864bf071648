package api

import (
	"fmt"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/deadletter"
	"github.com/JaimeStill/tally/internal/enhancement"
	"github.com/JaimeStill/tally/internal/exceptions"
	"github.com/JaimeStill/tally/internal/exporting"
	"github.com/JaimeStill/tally/internal/extraction"
	"github.com/JaimeStill/tally/internal/idempotency"
	"github.com/JaimeStill/tally/internal/ingestion"
	"github.com/JaimeStill/tally/internal/invoices"
	"github.com/JaimeStill/tally/internal/reviews"
	"github.com/JaimeStill/tally/internal/tasks"
	"github.com/JaimeStill/tally/internal/workflow"
)

// Domain holds all domain systems that comprise the API, plus the task queue
// and worker pool that drive the pipeline.
type Domain struct {
	Invoices    invoices.System
	Exceptions  exceptions.System
	Ingestion   ingestion.System
	DeadLetters deadletter.System
	Reviews     reviews.System
	Ledger      idempotency.System
	Queue       *tasks.Queue
	Engine      *workflow.Engine
	Pool        *tasks.Pool
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	db := runtime.Database.Connection()

	ledger := idempotency.New(db, idempotency.Config{
		Policy:        idempotency.ConflictPolicy(cfg.Pipeline.IdempotencyConflict),
		TTL:           cfg.Pipeline.IdempotencyTTLDuration(),
		MaxExecutions: cfg.Pipeline.IdempotencyMaxExecutions,
		WaitInterval:  cfg.Pipeline.PollIntervalDuration(),
	}, runtime.Logger)

	queue := tasks.NewQueue(db, runtime.Logger, cfg.Pipeline.MaxRetries)

	invoiceSys := invoices.New(db, runtime.Logger, runtime.Pagination)
	exceptionSys := exceptions.New(db, runtime.Logger, runtime.Pagination)

	resolver, err := ingestion.NewResolver(
		cfg.Pipeline.DedupStrategy,
		cfg.Pipeline.DedupAction,
		cfg.Pipeline.DedupWindowDays,
	)
	if err != nil {
		return nil, fmt.Errorf("dedup resolver: %w", err)
	}

	ingestionSys := ingestion.New(
		db,
		runtime.Logger,
		runtime.Pagination,
		runtime.Storage,
		invoiceSys,
		resolver,
		queue,
	)

	deadLetterSys := deadletter.New(db, runtime.Logger, runtime.Pagination, queue)

	engine := workflow.NewEngine(
		workflow.Config{
			ClaimTTL:             cfg.Pipeline.ClaimTTLDuration(),
			ConfidenceThreshold:  cfg.Pipeline.ConfidenceThreshold,
			AutoApproveThreshold: cfg.Pipeline.AutoApproveThreshold,
			AmountToleranceCents: cfg.Pipeline.AmountToleranceCents,
			AllowedCurrencies:    cfg.Pipeline.AllowedCurrencies,
			ClosedPeriods:        cfg.Pipeline.ClosedPeriods,
			RulesVersion:         cfg.Version,
			DedupStrategy:        resolver.Strategy,
			DedupWindow:          resolver.Window,
		},
		invoiceSys,
		exceptionSys,
		runtime.Storage,
		extraction.New(cfg.Services.Extraction.BaseURL, cfg.Services.Extraction.TimeoutDuration()),
		enhancement.New(cfg.Services.Enhancement.BaseURL, cfg.Services.Enhancement.TimeoutDuration()),
		exporting.New(cfg.Services.Export.BaseURL, cfg.Services.Export.TimeoutDuration()),
		ledger,
		runtime.Logger,
	)

	reviewSys := reviews.New(
		invoiceSys,
		exceptionSys,
		queue,
		cfg.Pipeline.ClaimTTLDuration(),
		runtime.Logger,
	)

	pool := tasks.NewPool(
		tasks.PoolConfig{
			Workers:      cfg.Pipeline.Workers,
			PollInterval: cfg.Pipeline.PollIntervalDuration(),
			BackoffBase:  cfg.Pipeline.RetryBackoffBaseDuration(),
			BackoffCap:   cfg.Pipeline.RetryBackoffCapDuration(),
		},
		queue,
		engine,
		deadLetterSys,
		ledger,
		runtime.Logger,
	)

	return &Domain{
		Invoices:    invoiceSys,
		Exceptions:  exceptionSys,
		Ingestion:   ingestionSys,
		DeadLetters: deadLetterSys,
		Reviews:     reviewSys,
		Ledger:      ledger,
		Queue:       queue,
		Engine:      engine,
		Pool:        pool,
	}, nil
}
