package invoices_test

import (
	"testing"

	"github.com/JaimeStill/tally/internal/invoices"
)

func sampleFields() invoices.FieldSet {
	return invoices.FieldSet{
		invoices.FieldVendorName:    {Value: "Acme Corp", Confidence: 0.95, Origin: invoices.OriginExtracted},
		invoices.FieldInvoiceNumber: {Value: "INV-1001", Confidence: 0.8, Origin: invoices.OriginExtracted},
		invoices.FieldTotalAmount:   {Value: "1842.50", Confidence: 0.62, Origin: invoices.OriginExtracted},
		invoices.FieldPONumber:      {Value: "PO-77", Confidence: 0.41, Origin: invoices.OriginExtracted},
	}
}

func TestFieldSetBelow(t *testing.T) {
	fields := sampleFields()

	tests := []struct {
		name      string
		threshold float64
		want      []string
	}{
		{name: "strictly below only", threshold: 0.8, want: []string{"po_number", "total_amount"}},
		{name: "at threshold passes", threshold: 0.62, want: []string{"po_number"}},
		{name: "none below", threshold: 0.1, want: nil},
		{name: "all below", threshold: 1.0, want: []string{"invoice_number", "po_number", "total_amount", "vendor_name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fields.Below(tt.threshold)
			if len(got) != len(tt.want) {
				t.Fatalf("Below(%v) = %v, want %v", tt.threshold, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Below(%v)[%d] = %s, want %s", tt.threshold, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFieldSetMinConfidence(t *testing.T) {
	if got := sampleFields().MinConfidence(); got != 0.41 {
		t.Errorf("MinConfidence = %v, want 0.41", got)
	}
	if got := (invoices.FieldSet{}).MinConfidence(); got != 1.0 {
		t.Errorf("empty MinConfidence = %v, want 1.0", got)
	}
}

func TestFieldSetMerge(t *testing.T) {
	base := sampleFields()
	overlay := invoices.FieldSet{
		invoices.FieldPONumber: {Value: "PO-0077", Confidence: 1, Origin: invoices.OriginCorrected},
		invoices.FieldCurrency: {Value: "USD", Confidence: 1, Origin: invoices.OriginCorrected},
	}

	merged := base.Merge(overlay)

	if got := merged[invoices.FieldPONumber]; got.Value != "PO-0077" || got.Origin != invoices.OriginCorrected {
		t.Errorf("po_number = %+v, want overlay value", got)
	}
	if got := merged.Value(invoices.FieldCurrency); got != "USD" {
		t.Errorf("currency = %q, want USD", got)
	}
	if got := merged.Value(invoices.FieldVendorName); got != "Acme Corp" {
		t.Errorf("vendor_name = %q, want base value preserved", got)
	}

	// Merge copies; the receiver stays untouched.
	if got := base[invoices.FieldPONumber]; got.Value != "PO-77" {
		t.Errorf("base mutated: po_number = %+v", got)
	}
	if _, ok := base[invoices.FieldCurrency]; ok {
		t.Error("base mutated: currency added")
	}
}

func TestFieldSetKeysSorted(t *testing.T) {
	keys := sampleFields().Keys()
	want := []string{"invoice_number", "po_number", "total_amount", "vendor_name"}

	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range keys {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestFieldSetValueAbsent(t *testing.T) {
	if got := sampleFields().Value(invoices.FieldDueDate); got != "" {
		t.Errorf("absent key value = %q, want empty", got)
	}
}

func TestFieldSetValueTrimmed(t *testing.T) {
	fields := invoices.FieldSet{
		invoices.FieldVendorName: {Value: "  Acme Corp \n", Confidence: 0.9},
	}

	if got := fields.Value(invoices.FieldVendorName); got != "Acme Corp" {
		t.Errorf("Value = %q, want surrounding whitespace removed", got)
	}
}
