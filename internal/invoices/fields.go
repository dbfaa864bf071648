package invoices

import (
	"sort"
	"strings"
)

// Origin tags where a field value came from.
type Origin string

// Field provenance values.
const (
	OriginExtracted Origin = "extracted"
	OriginEnhanced  Origin = "enhanced"
	OriginCorrected Origin = "corrected"
)

// Well-known header field keys produced by extraction.
const (
	FieldVendorName    = "vendor_name"
	FieldVendorID      = "vendor_id"
	FieldInvoiceNumber = "invoice_number"
	FieldInvoiceDate   = "invoice_date"
	FieldDueDate       = "due_date"
	FieldCurrency      = "currency"
	FieldTotalAmount   = "total_amount"
	FieldTaxAmount     = "tax_amount"
	FieldPaymentTerms  = "payment_terms"
	FieldPONumber      = "po_number"
)

// Field is a single extracted or enhanced header value with its confidence
// score (0–1) and provenance.
type Field struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Origin     Origin  `json:"origin"`
	Rationale  string  `json:"rationale,omitempty"`
}

// FieldSet maps header field keys to values.
type FieldSet map[string]Field

// LineItem is one structured invoice line.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitCents   int64   `json:"unit_cents"`
	TotalCents  int64   `json:"total_cents"`
}

// Keys returns the field keys in sorted order for deterministic iteration.
func (fs FieldSet) Keys() []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Below returns the keys of fields with confidence strictly below the
// threshold, sorted. A field exactly at threshold passes unchanged.
func (fs FieldSet) Below(threshold float64) []string {
	var keys []string
	for _, k := range fs.Keys() {
		if fs[k].Confidence < threshold {
			keys = append(keys, k)
		}
	}
	return keys
}

// MinConfidence returns the lowest confidence across all fields, or 1 for an
// empty set. Auto-approval admits no partial credit, so the aggregate is the
// minimum rather than a mean.
func (fs FieldSet) MinConfidence() float64 {
	min := 1.0
	for _, f := range fs {
		if f.Confidence < min {
			min = f.Confidence
		}
	}
	return min
}

// Merge returns a copy of fs with overlay values applied.
func (fs FieldSet) Merge(overlay FieldSet) FieldSet {
	merged := make(FieldSet, len(fs))
	for k, v := range fs {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// Value returns the trimmed value for a key, or "" when absent.
func (fs FieldSet) Value(key string) string {
	return strings.TrimSpace(fs[key].Value)
}
