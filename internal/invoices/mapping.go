package invoices

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "invoices", "i").
	Project("id", "ID").
	Project("fingerprint", "Fingerprint").
	Project("filename", "Filename").
	Project("content_type", "ContentType").
	Project("storage_key", "StorageKey").
	Project("priority", "Priority").
	Project("status", "Status").
	Project("workflow_state", "WorkflowState").
	Project("checkpoint", "Checkpoint").
	Project("version", "Version").
	Project("claimed_by", "ClaimedBy").
	Project("claim_expires", "ClaimExpires").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for invoice queries.
// Status, WorkflowState, and Fingerprint use exact matching; Filename uses
// case-insensitive contains matching.
type Filters struct {
	Status        *string `json:"status,omitempty"`
	WorkflowState *string `json:"workflow_state,omitempty"`
	Fingerprint   *string `json:"fingerprint,omitempty"`
	Filename      *string `json:"filename,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("WorkflowState", f.WorkflowState).
		WhereEquals("Fingerprint", f.Fingerprint).
		WhereContains("Filename", f.Filename)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("status"); v != "" {
		f.Status = &v
	}

	if v := values.Get("workflow_state"); v != "" {
		f.WorkflowState = &v
	}

	if v := values.Get("fingerprint"); v != "" {
		f.Fingerprint = &v
	}

	if v := values.Get("filename"); v != "" {
		f.Filename = &v
	}

	return f
}

func scanInvoice(s repository.Scanner) (Invoice, error) {
	var i Invoice
	err := s.Scan(
		&i.ID,
		&i.Fingerprint,
		&i.Filename,
		&i.ContentType,
		&i.StorageKey,
		&i.Priority,
		&i.Status,
		&i.WorkflowState,
		&i.Checkpoint,
		&i.Version,
		&i.ClaimedBy,
		&i.ClaimExpires,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanExtraction(s repository.Scanner) (ExtractionResult, error) {
	var (
		r         ExtractionResult
		fields    []byte
		lineItems []byte
	)

	err := s.Scan(
		&r.ID,
		&r.InvoiceID,
		&fields,
		&lineItems,
		&r.ExtractorVersion,
		&r.DurationMS,
		&r.CreatedAt,
	)
	if err != nil {
		return r, err
	}

	if err := json.Unmarshal(fields, &r.Fields); err != nil {
		return r, fmt.Errorf("decode extraction fields: %w", err)
	}
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &r.LineItems); err != nil {
			return r, fmt.Errorf("decode extraction line items: %w", err)
		}
	}

	return r, nil
}

func scanValidation(s repository.Scanner) (ValidationResult, error) {
	var r ValidationResult
	err := s.Scan(
		&r.ID,
		&r.InvoiceID,
		&r.Passed,
		&r.Checks,
		&r.RulesVersion,
		&r.CreatedAt,
	)
	return r, err
}

func scanExport(s repository.Scanner) (StagedExport, error) {
	var e StagedExport
	err := s.Scan(
		&e.ID,
		&e.InvoiceID,
		&e.Payload,
		&e.Format,
		&e.Status,
		&e.IdempotencyKey,
		&e.DestinationID,
		&e.ErrorDetail,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}

func scanReviewSummary(s repository.Scanner) (ReviewSummary, error) {
	var r ReviewSummary
	err := s.Scan(
		&r.ID,
		&r.Filename,
		&r.Status,
		&r.WorkflowState,
		&r.SuspendedAt,
	)
	return r, err
}
