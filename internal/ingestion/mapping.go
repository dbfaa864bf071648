package ingestion

import (
	"net/url"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "ingestion_jobs", "j").
	Project("id", "ID").
	Project("filename", "Filename").
	Project("content_type", "ContentType").
	Project("size_bytes", "SizeBytes").
	Project("page_count", "PageCount").
	Project("fingerprint", "Fingerprint").
	Project("storage_key", "StorageKey").
	Project("source", "Source").
	Project("priority", "Priority").
	Project("status", "Status").
	Project("invoice_id", "InvoiceID").
	Project("duplicate_of", "DuplicateOf").
	Project("resolution", "Resolution").
	Project("error", "Error").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for ingestion job queries.
type Filters struct {
	Status      *string `json:"status,omitempty"`
	Source      *string `json:"source,omitempty"`
	Fingerprint *string `json:"fingerprint,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("Source", f.Source).
		WhereEquals("Fingerprint", f.Fingerprint)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("status"); v != "" {
		f.Status = &v
	}

	if v := values.Get("source"); v != "" {
		f.Source = &v
	}

	if v := values.Get("fingerprint"); v != "" {
		f.Fingerprint = &v
	}

	return f
}

func scanJob(s repository.Scanner) (IngestionJob, error) {
	var j IngestionJob
	err := s.Scan(
		&j.ID,
		&j.Filename,
		&j.ContentType,
		&j.SizeBytes,
		&j.PageCount,
		&j.Fingerprint,
		&j.StorageKey,
		&j.Source,
		&j.Priority,
		&j.Status,
		&j.InvoiceID,
		&j.DuplicateOf,
		&j.Resolution,
		&j.Error,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	return j, err
}
