// Package exceptions implements the exception domain for Tally.
// It provides the closed reason-code taxonomy, static severity mapping,
// and data access for validation and business-rule failures that must be
// resolved before an invoice can export.
package exceptions

import "fmt"

// ReasonCode identifies the category of a recorded failure.
// The set is closed; SeverityFor matches exhaustively so that a new code
// added here without a severity assignment fails at build time.
type ReasonCode string

// The full reason-code taxonomy.
const (
	ReasonLowConfidence       ReasonCode = "low_confidence"
	ReasonMissingField        ReasonCode = "missing_field"
	ReasonUnknownVendor       ReasonCode = "unknown_vendor"
	ReasonAmountMismatch      ReasonCode = "amount_mismatch"
	ReasonDateError           ReasonCode = "date_error"
	ReasonDuplicate           ReasonCode = "duplicate"
	ReasonBusinessRule        ReasonCode = "business_rule"
	ReasonPoorQuality         ReasonCode = "poor_quality"
	ReasonCurrencyMismatch    ReasonCode = "currency_mismatch"
	ReasonTaxError            ReasonCode = "tax_error"
	ReasonInvalidFormat       ReasonCode = "invalid_format"
	ReasonReferenceMismatch   ReasonCode = "reference_mismatch"
	ReasonInvalidPaymentTerms ReasonCode = "invalid_payment_terms"
	ReasonPOMismatch          ReasonCode = "po_mismatch"
	ReasonPeriodClosed        ReasonCode = "period_closed"
	ReasonApprovalRequired    ReasonCode = "approval_required"
	ReasonCustomRule          ReasonCode = "custom_rule"
)

// Codes lists every reason code in taxonomy order.
func Codes() []ReasonCode {
	return []ReasonCode{
		ReasonLowConfidence,
		ReasonMissingField,
		ReasonUnknownVendor,
		ReasonAmountMismatch,
		ReasonDateError,
		ReasonDuplicate,
		ReasonBusinessRule,
		ReasonPoorQuality,
		ReasonCurrencyMismatch,
		ReasonTaxError,
		ReasonInvalidFormat,
		ReasonReferenceMismatch,
		ReasonInvalidPaymentTerms,
		ReasonPOMismatch,
		ReasonPeriodClosed,
		ReasonApprovalRequired,
		ReasonCustomRule,
	}
}

// Valid reports whether the code belongs to the taxonomy.
func (c ReasonCode) Valid() bool {
	for _, code := range Codes() {
		if c == code {
			return true
		}
	}
	return false
}

// Severity ranks how urgently an exception needs attention.
type Severity string

// Severity tiers.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SeverityFor returns the static severity assignment for a reason code.
// Panics on a code outside the taxonomy; callers validate first.
func SeverityFor(code ReasonCode) Severity {
	switch code {
	case ReasonAmountMismatch, ReasonDuplicate, ReasonTaxError, ReasonPeriodClosed:
		return SeverityCritical
	case ReasonMissingField, ReasonUnknownVendor, ReasonPOMismatch,
		ReasonBusinessRule, ReasonReferenceMismatch, ReasonCurrencyMismatch:
		return SeverityHigh
	case ReasonLowConfidence, ReasonDateError, ReasonInvalidFormat,
		ReasonInvalidPaymentTerms, ReasonApprovalRequired, ReasonCustomRule:
		return SeverityMedium
	case ReasonPoorQuality:
		return SeverityLow
	default:
		panic(fmt.Sprintf("unmapped reason code: %s", code))
	}
}
