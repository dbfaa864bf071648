package exceptions

import (
	"net/url"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "exceptions", "e").
	Project("id", "ID").
	Project("invoice_id", "InvoiceID").
	Project("reason", "Reason").
	Project("severity", "Severity").
	Project("status", "Status").
	Project("detail", "Detail").
	Project("dedup_key", "DedupKey").
	Project("resolved_by", "ResolvedBy").
	Project("resolved_at", "ResolvedAt").
	Project("notes", "Notes").
	Project("created_at", "CreatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for exception queries.
type Filters struct {
	InvoiceID *uuid.UUID `json:"invoice_id,omitempty"`
	Reason    *string    `json:"reason,omitempty"`
	Severity  *string    `json:"severity,omitempty"`
	Status    *string    `json:"status,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("InvoiceID", f.InvoiceID).
		WhereEquals("Reason", f.Reason).
		WhereEquals("Severity", f.Severity).
		WhereEquals("Status", f.Status)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("invoice_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			f.InvoiceID = &id
		}
	}

	if v := values.Get("reason"); v != "" {
		f.Reason = &v
	}

	if v := values.Get("severity"); v != "" {
		f.Severity = &v
	}

	if v := values.Get("status"); v != "" {
		f.Status = &v
	}

	return f
}

func scanException(s repository.Scanner) (Exception, error) {
	var e Exception
	err := s.Scan(
		&e.ID,
		&e.InvoiceID,
		&e.Reason,
		&e.Severity,
		&e.Status,
		&e.Detail,
		&e.DedupKey,
		&e.ResolvedBy,
		&e.ResolvedAt,
		&e.Notes,
		&e.CreatedAt,
	)
	return e, err
}
