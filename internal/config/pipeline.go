package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names for pipeline configuration.
const (
	EnvPipelineWorkers             = "TALLY_PIPELINE_WORKERS"
	EnvPipelineMaxRetries          = "TALLY_PIPELINE_MAX_RETRIES"
	EnvPipelineConfidenceThreshold = "TALLY_PIPELINE_CONFIDENCE_THRESHOLD"
	EnvPipelineAutoApprove         = "TALLY_PIPELINE_AUTO_APPROVE_THRESHOLD"
	EnvPipelineDedupStrategy       = "TALLY_PIPELINE_DEDUP_STRATEGY"
	EnvPipelineDedupAction         = "TALLY_PIPELINE_DEDUP_ACTION"
	EnvPipelineIdempotencyConflict = "TALLY_PIPELINE_IDEMPOTENCY_CONFLICT"
	EnvPipelineIdempotencyMaxExec  = "TALLY_PIPELINE_IDEMPOTENCY_MAX_EXECUTIONS"
)

// PipelineConfig holds processing workflow parameters: worker pool sizing,
// retry budgets, confidence gates, deduplication policy, and idempotency
// conflict behavior.
type PipelineConfig struct {
	Workers             int      `toml:"workers"`
	MaxRetries          int      `toml:"max_retries"`
	RetryBackoffBase    string   `toml:"retry_backoff_base"`
	RetryBackoffCap     string   `toml:"retry_backoff_cap"`
	PollInterval        string   `toml:"poll_interval"`
	ClaimTTL            string   `toml:"claim_ttl"`
	ConfidenceThreshold float64  `toml:"confidence_threshold"`
	AutoApproveThreshold float64 `toml:"auto_approve_threshold"`
	AmountToleranceCents int64   `toml:"amount_tolerance_cents"`
	DedupStrategy       string   `toml:"dedup_strategy"`
	DedupAction         string   `toml:"dedup_action"`
	DedupWindowDays     int      `toml:"dedup_window_days"`
	IdempotencyConflict string   `toml:"idempotency_conflict"`
	IdempotencyTTL      string   `toml:"idempotency_ttl"`
	// IdempotencyMaxExecutions bounds side-effect executions per ledger key.
	// Independent of MaxRetries: a replayed key returns the cached result
	// instead of re-executing.
	IdempotencyMaxExecutions int `toml:"idempotency_max_executions"`
	AllowedCurrencies   []string `toml:"allowed_currencies"`
	ClosedPeriods       []string `toml:"closed_periods"`
}

// RetryBackoffBaseDuration returns RetryBackoffBase as a time.Duration.
func (c *PipelineConfig) RetryBackoffBaseDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryBackoffBase)
	return d
}

// RetryBackoffCapDuration returns RetryBackoffCap as a time.Duration.
func (c *PipelineConfig) RetryBackoffCapDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryBackoffCap)
	return d
}

// PollIntervalDuration returns PollInterval as a time.Duration.
func (c *PipelineConfig) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// ClaimTTLDuration returns ClaimTTL as a time.Duration.
func (c *PipelineConfig) ClaimTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.ClaimTTL)
	return d
}

// IdempotencyTTLDuration returns IdempotencyTTL as a time.Duration.
func (c *PipelineConfig) IdempotencyTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.IdempotencyTTL)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *PipelineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *PipelineConfig) Merge(overlay *PipelineConfig) {
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.MaxRetries != 0 {
		c.MaxRetries = overlay.MaxRetries
	}
	if overlay.RetryBackoffBase != "" {
		c.RetryBackoffBase = overlay.RetryBackoffBase
	}
	if overlay.RetryBackoffCap != "" {
		c.RetryBackoffCap = overlay.RetryBackoffCap
	}
	if overlay.PollInterval != "" {
		c.PollInterval = overlay.PollInterval
	}
	if overlay.ClaimTTL != "" {
		c.ClaimTTL = overlay.ClaimTTL
	}
	if overlay.ConfidenceThreshold != 0 {
		c.ConfidenceThreshold = overlay.ConfidenceThreshold
	}
	if overlay.AutoApproveThreshold != 0 {
		c.AutoApproveThreshold = overlay.AutoApproveThreshold
	}
	if overlay.AmountToleranceCents != 0 {
		c.AmountToleranceCents = overlay.AmountToleranceCents
	}
	if overlay.DedupStrategy != "" {
		c.DedupStrategy = overlay.DedupStrategy
	}
	if overlay.DedupAction != "" {
		c.DedupAction = overlay.DedupAction
	}
	if overlay.DedupWindowDays != 0 {
		c.DedupWindowDays = overlay.DedupWindowDays
	}
	if overlay.IdempotencyConflict != "" {
		c.IdempotencyConflict = overlay.IdempotencyConflict
	}
	if overlay.IdempotencyTTL != "" {
		c.IdempotencyTTL = overlay.IdempotencyTTL
	}
	if overlay.IdempotencyMaxExecutions != 0 {
		c.IdempotencyMaxExecutions = overlay.IdempotencyMaxExecutions
	}
	if len(overlay.AllowedCurrencies) > 0 {
		c.AllowedCurrencies = overlay.AllowedCurrencies
	}
	if len(overlay.ClosedPeriods) > 0 {
		c.ClosedPeriods = overlay.ClosedPeriods
	}
}

func (c *PipelineConfig) loadDefaults() {
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoffBase == "" {
		c.RetryBackoffBase = "5s"
	}
	if c.RetryBackoffCap == "" {
		c.RetryBackoffCap = "5m"
	}
	if c.PollInterval == "" {
		c.PollInterval = "500ms"
	}
	if c.ClaimTTL == "" {
		c.ClaimTTL = "2m"
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.8
	}
	if c.AutoApproveThreshold == 0 {
		c.AutoApproveThreshold = 0.9
	}
	if c.AmountToleranceCents == 0 {
		c.AmountToleranceCents = 1
	}
	if c.DedupStrategy == "" {
		c.DedupStrategy = "file_hash"
	}
	if c.DedupAction == "" {
		c.DedupAction = "manual_review"
	}
	if c.DedupWindowDays == 0 {
		c.DedupWindowDays = 30
	}
	if c.IdempotencyConflict == "" {
		c.IdempotencyConflict = "fail"
	}
	if c.IdempotencyTTL == "" {
		c.IdempotencyTTL = "24h"
	}
	if c.IdempotencyMaxExecutions == 0 {
		c.IdempotencyMaxExecutions = 1
	}
	if len(c.AllowedCurrencies) == 0 {
		c.AllowedCurrencies = []string{"USD"}
	}
}

func (c *PipelineConfig) loadEnv() {
	if v := os.Getenv(EnvPipelineWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers = n
		}
	}
	if v := os.Getenv(EnvPipelineMaxRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv(EnvPipelineConfidenceThreshold); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv(EnvPipelineAutoApprove); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.AutoApproveThreshold = f
		}
	}
	if v := os.Getenv(EnvPipelineDedupStrategy); v != "" {
		c.DedupStrategy = v
	}
	if v := os.Getenv(EnvPipelineDedupAction); v != "" {
		c.DedupAction = v
	}
	if v := os.Getenv(EnvPipelineIdempotencyConflict); v != "" {
		c.IdempotencyConflict = v
	}
	if v := os.Getenv(EnvPipelineIdempotencyMaxExec); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.IdempotencyMaxExecutions = n
		}
	}
}

func (c *PipelineConfig) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0, 1]")
	}
	if c.AutoApproveThreshold < 0 || c.AutoApproveThreshold > 1 {
		return fmt.Errorf("auto_approve_threshold must be in [0, 1]")
	}
	if c.IdempotencyConflict != "fail" && c.IdempotencyConflict != "wait" {
		return fmt.Errorf("idempotency_conflict must be fail or wait")
	}
	if c.IdempotencyMaxExecutions < 1 {
		return fmt.Errorf("idempotency_max_executions must be positive")
	}
	for _, name := range []string{c.RetryBackoffBase, c.RetryBackoffCap, c.PollInterval, c.ClaimTTL, c.IdempotencyTTL} {
		if _, err := time.ParseDuration(name); err != nil {
			return fmt.Errorf("invalid duration %q: %w", name, err)
		}
	}
	return nil
}
