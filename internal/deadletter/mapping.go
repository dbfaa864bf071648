package deadletter

import (
	"net/url"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "dead_letters", "d").
	Project("id", "ID").
	Project("task_id", "TaskID").
	Project("invoice_id", "InvoiceID").
	Project("stage", "Stage").
	Project("category", "Category").
	Project("error", "Error").
	Project("payload", "Payload").
	Project("attempts", "Attempts").
	Project("priority", "Priority").
	Project("redrive_count", "RedriveCount").
	Project("history", "History").
	Project("manual_intervention", "ManualIntervention").
	Project("status", "Status").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for dead letter queries.
type Filters struct {
	Status   *string `json:"status,omitempty"`
	Category *string `json:"category,omitempty"`
	Stage    *string `json:"stage,omitempty"`
	Manual   *bool   `json:"manual,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("Category", f.Category).
		WhereEquals("Stage", f.Stage).
		WhereEquals("ManualIntervention", f.Manual)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("status"); v != "" {
		f.Status = &v
	}

	if v := values.Get("category"); v != "" {
		f.Category = &v
	}

	if v := values.Get("stage"); v != "" {
		f.Stage = &v
	}

	if v := values.Get("manual"); v == "true" || v == "false" {
		manual := v == "true"
		f.Manual = &manual
	}

	return f
}

func scanEntry(s repository.Scanner) (Entry, error) {
	var e Entry
	err := s.Scan(
		&e.ID,
		&e.TaskID,
		&e.InvoiceID,
		&e.Stage,
		&e.Category,
		&e.Error,
		&e.Payload,
		&e.Attempts,
		&e.Priority,
		&e.RedriveCount,
		&e.History,
		&e.ManualIntervention,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}
