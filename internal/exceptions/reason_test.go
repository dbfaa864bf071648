package exceptions_test

import (
	"testing"

	"github.com/JaimeStill/tally/internal/exceptions"
)

func TestSeverityForCoversTaxonomy(t *testing.T) {
	want := map[exceptions.ReasonCode]exceptions.Severity{
		exceptions.ReasonAmountMismatch:      exceptions.SeverityCritical,
		exceptions.ReasonDuplicate:           exceptions.SeverityCritical,
		exceptions.ReasonTaxError:            exceptions.SeverityCritical,
		exceptions.ReasonPeriodClosed:        exceptions.SeverityCritical,
		exceptions.ReasonMissingField:        exceptions.SeverityHigh,
		exceptions.ReasonUnknownVendor:       exceptions.SeverityHigh,
		exceptions.ReasonPOMismatch:          exceptions.SeverityHigh,
		exceptions.ReasonBusinessRule:        exceptions.SeverityHigh,
		exceptions.ReasonReferenceMismatch:   exceptions.SeverityHigh,
		exceptions.ReasonCurrencyMismatch:    exceptions.SeverityHigh,
		exceptions.ReasonLowConfidence:       exceptions.SeverityMedium,
		exceptions.ReasonDateError:           exceptions.SeverityMedium,
		exceptions.ReasonInvalidFormat:       exceptions.SeverityMedium,
		exceptions.ReasonInvalidPaymentTerms: exceptions.SeverityMedium,
		exceptions.ReasonApprovalRequired:    exceptions.SeverityMedium,
		exceptions.ReasonCustomRule:          exceptions.SeverityMedium,
		exceptions.ReasonPoorQuality:         exceptions.SeverityLow,
	}

	codes := exceptions.Codes()
	if len(codes) != len(want) {
		t.Fatalf("taxonomy has %d codes, severity expectations cover %d", len(codes), len(want))
	}

	for _, code := range codes {
		expected, ok := want[code]
		if !ok {
			t.Errorf("code %s missing from severity expectations", code)
			continue
		}
		if got := exceptions.SeverityFor(code); got != expected {
			t.Errorf("SeverityFor(%s) = %s, want %s", code, got, expected)
		}
	}
}

func TestSeverityForPanicsOutsideTaxonomy(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("SeverityFor accepted a code outside the taxonomy")
		}
	}()
	exceptions.SeverityFor("paper_jam")
}

func TestReasonCodeValid(t *testing.T) {
	for _, code := range exceptions.Codes() {
		if !code.Valid() {
			t.Errorf("code %s reported invalid", code)
		}
	}
	if exceptions.ReasonCode("paper_jam").Valid() {
		t.Error("unknown code reported valid")
	}
	if exceptions.ReasonCode("").Valid() {
		t.Error("empty code reported valid")
	}
}
