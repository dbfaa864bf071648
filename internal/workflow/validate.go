package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JaimeStill/tally/internal/deadletter"
	"github.com/JaimeStill/tally/internal/exceptions"
	"github.com/JaimeStill/tally/internal/ingestion"
	"github.com/JaimeStill/tally/internal/invoices"
)

// requiredFields must be present with non-empty values for an invoice to
// validate.
var requiredFields = []string{
	invoices.FieldVendorName,
	invoices.FieldInvoiceNumber,
	invoices.FieldInvoiceDate,
	invoices.FieldCurrency,
	invoices.FieldTotalAmount,
}

var poPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9/_-]*$`)

// knownPaymentTerms enumerates the payment terms the downstream systems
// accept.
var knownPaymentTerms = map[string]bool{
	"net 15":         true,
	"net 30":         true,
	"net 45":         true,
	"net 60":         true,
	"net 90":         true,
	"due on receipt": true,
}

// dateFormats lists accepted field date layouts in trial order.
var dateFormats = []string{"2006-01-02", time.RFC3339, "01/02/2006"}

// RuleInput is the material a validation rule inspects.
type RuleInput struct {
	Invoice   *invoices.Invoice
	Fields    invoices.FieldSet
	LineItems []invoices.LineItem
}

// Rule is an operator-defined validation check appended to the built-in
// battery.
type Rule struct {
	Name   string
	Reason exceptions.ReasonCode
	Check  func(ctx context.Context, in RuleInput) (passed bool, detail string)
}

// validate runs the full check battery against the patched fields and
// records the result. The battery is deterministic: identical fields and
// rules version always produce the same ordered check list. Any failure
// moves the invoice to the exception state with one exception per failed
// check.
func (e *Engine) validate(ctx context.Context, inv *invoices.Invoice, cp Checkpoint) (string, Checkpoint, error) {
	ext, err := e.invoices.LatestExtraction(ctx, inv.ID)
	if err != nil {
		return "", cp, transient(StageValidate, err)
	}

	in := RuleInput{Invoice: inv, Fields: cp.WorkingFields(), LineItems: ext.LineItems}

	checks, err := e.runBattery(ctx, in)
	if err != nil {
		return "", cp, transient(StageValidate, err)
	}

	// An unresolved exception blocks the verdict even when every check in
	// the battery passes; resolving it re-enters the pipeline here.
	open, err := e.exceptions.OpenCount(ctx, inv.ID)
	if err != nil {
		return "", cp, transient(StageValidate, err)
	}

	passed := open == 0
	var failures []string
	for _, c := range checks {
		if !c.Passed {
			passed = false
			failures = append(failures, c.Name)
		}
	}

	encoded, err := json.Marshal(checks)
	if err != nil {
		return "", cp, fatal(StageValidate, err)
	}

	recorded, err := e.invoices.RecordValidation(ctx, &invoices.ValidationResult{
		InvoiceID:    inv.ID,
		Passed:       passed,
		Checks:       encoded,
		RulesVersion: e.cfg.RulesVersion,
	})
	if err != nil {
		return "", cp, transient(StageValidate, err)
	}

	cp.Validate = &ValidateState{
		ValidationID: recorded.ID,
		Passed:       passed,
		Failures:     failures,
	}

	if passed {
		cp.Stage = StageTriage
		return invoices.StatusValidated, cp, nil
	}

	for _, c := range checks {
		if c.Passed {
			continue
		}
		key := fmt.Sprintf("validate:%s:%s", e.cfg.RulesVersion, c.Name)
		if err := e.raise(ctx, inv.ID, exceptions.ReasonCode(c.Reason), key,
			map[string]string{"check": c.Name, "detail": c.Detail},
		); err != nil {
			return "", cp, transient(StageValidate, deadletter.WithCategory(deadletter.CategoryValidation, err))
		}
	}

	cp.Stage = StageException
	return invoices.StatusException, cp, nil
}

// runBattery executes every check in fixed order. Checks that need data
// lookups can fail the stage outright; pure checks never error.
func (e *Engine) runBattery(ctx context.Context, in RuleInput) ([]invoices.CheckResult, error) {
	checks := []invoices.CheckResult{
		checkRequiredFields(in),
		checkDateFormats(in),
		checkDateOrder(in),
		checkAmountMath(in, e.cfg.AmountToleranceCents),
		checkTaxAmount(in),
		checkCurrency(in, e.cfg.AllowedCurrencies),
		checkPaymentTerms(in),
	}

	vendor, err := e.checkVendorKnown(ctx, in)
	if err != nil {
		return nil, err
	}
	checks = append(checks, vendor, checkPOFormat(in))

	reference, err := e.checkReference(ctx, in)
	if err != nil {
		return nil, err
	}
	checks = append(checks, reference, checkPositiveTotal(in), checkPeriodOpen(in, e.cfg.ClosedPeriods))

	for _, rule := range e.custom {
		passed, detail := rule.Check(ctx, in)
		reason := rule.Reason
		if reason == "" {
			reason = exceptions.ReasonCustomRule
		}
		checks = append(checks, invoices.CheckResult{
			Name:   rule.Name,
			Passed: passed,
			Reason: string(reason),
			Detail: detail,
		})
	}

	return checks, nil
}

func checkRequiredFields(in RuleInput) invoices.CheckResult {
	var missing []string
	for _, k := range requiredFields {
		if strings.TrimSpace(in.Fields.Value(k)) == "" {
			missing = append(missing, k)
		}
	}

	return invoices.CheckResult{
		Name:   "required_fields",
		Passed: len(missing) == 0,
		Reason: string(exceptions.ReasonMissingField),
		Detail: strings.Join(missing, ","),
	}
}

func parseFieldDate(value string) (time.Time, bool) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func checkDateFormats(in RuleInput) invoices.CheckResult {
	var bad []string
	for _, k := range []string{invoices.FieldInvoiceDate, invoices.FieldDueDate} {
		v := in.Fields.Value(k)
		if v == "" {
			continue
		}
		if _, ok := parseFieldDate(v); !ok {
			bad = append(bad, k)
		}
	}

	return invoices.CheckResult{
		Name:   "date_formats",
		Passed: len(bad) == 0,
		Reason: string(exceptions.ReasonInvalidFormat),
		Detail: strings.Join(bad, ","),
	}
}

func checkDateOrder(in RuleInput) invoices.CheckResult {
	result := invoices.CheckResult{
		Name:   "date_order",
		Passed: true,
		Reason: string(exceptions.ReasonDateError),
	}

	issued, okIssued := parseFieldDate(in.Fields.Value(invoices.FieldInvoiceDate))
	due, okDue := parseFieldDate(in.Fields.Value(invoices.FieldDueDate))
	if !okIssued || !okDue {
		return result
	}

	if due.Before(issued) {
		result.Passed = false
		result.Detail = "due date precedes invoice date"
	}
	return result
}

func checkAmountMath(in RuleInput, toleranceCents int64) invoices.CheckResult {
	result := invoices.CheckResult{
		Name:   "amount_math",
		Passed: true,
		Reason: string(exceptions.ReasonAmountMismatch),
	}

	total, err := ParseCents(in.Fields.Value(invoices.FieldTotalAmount))
	if err != nil {
		result.Passed = false
		result.Detail = "unparseable total_amount"
		return result
	}

	if len(in.LineItems) == 0 {
		return result
	}

	var sum int64
	for _, li := range in.LineItems {
		sum += li.TotalCents
	}
	if tax := in.Fields.Value(invoices.FieldTaxAmount); tax != "" {
		if cents, err := ParseCents(tax); err == nil {
			sum += cents
		}
	}

	diff := total - sum
	if diff < 0 {
		diff = -diff
	}
	if diff > toleranceCents {
		result.Passed = false
		result.Detail = fmt.Sprintf("line items %s vs total %s", FormatCents(sum), FormatCents(total))
	}
	return result
}

func checkTaxAmount(in RuleInput) invoices.CheckResult {
	result := invoices.CheckResult{
		Name:   "tax_amount",
		Passed: true,
		Reason: string(exceptions.ReasonTaxError),
	}

	tax := in.Fields.Value(invoices.FieldTaxAmount)
	if tax == "" {
		return result
	}

	cents, err := ParseCents(tax)
	if err != nil {
		result.Passed = false
		result.Detail = "unparseable tax_amount"
		return result
	}
	if cents < 0 {
		result.Passed = false
		result.Detail = "negative tax_amount"
	}
	return result
}

func checkCurrency(in RuleInput, allowed []string) invoices.CheckResult {
	result := invoices.CheckResult{
		Name:   "currency_allowed",
		Passed: true,
		Reason: string(exceptions.ReasonCurrencyMismatch),
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Fields.Value(invoices.FieldCurrency)))
	if currency == "" {
		return result
	}

	for _, c := range allowed {
		if strings.EqualFold(c, currency) {
			return result
		}
	}

	result.Passed = false
	result.Detail = currency
	return result
}

func checkPaymentTerms(in RuleInput) invoices.CheckResult {
	result := invoices.CheckResult{
		Name:   "payment_terms",
		Passed: true,
		Reason: string(exceptions.ReasonInvalidPaymentTerms),
	}

	terms := strings.ToLower(strings.TrimSpace(in.Fields.Value(invoices.FieldPaymentTerms)))
	if terms == "" || knownPaymentTerms[terms] {
		return result
	}

	result.Passed = false
	result.Detail = terms
	return result
}

func (e *Engine) checkVendorKnown(ctx context.Context, in RuleInput) (invoices.CheckResult, error) {
	result := invoices.CheckResult{
		Name:   "vendor_known",
		Passed: true,
		Reason: string(exceptions.ReasonUnknownVendor),
	}

	vendor := in.Fields.Value(invoices.FieldVendorName)
	if vendor == "" {
		return result, nil
	}

	known, err := e.invoices.VendorKnown(ctx, vendor, in.Invoice.ID)
	if err != nil {
		return result, transient(StageValidate, deadletter.WithCategory(deadletter.CategoryDatabase, err))
	}

	if !known {
		result.Passed = false
		result.Detail = vendor
	}
	return result, nil
}

func checkPOFormat(in RuleInput) invoices.CheckResult {
	result := invoices.CheckResult{
		Name:   "po_format",
		Passed: true,
		Reason: string(exceptions.ReasonPOMismatch),
	}

	po := strings.TrimSpace(in.Fields.Value(invoices.FieldPONumber))
	if po == "" {
		return result
	}

	if !poPattern.MatchString(po) {
		result.Passed = false
		result.Detail = po
	}
	return result
}

// checkReference compares this invoice against any existing invoice sharing
// its vendor and invoice number. A match with the same total is a duplicate
// under the composite strategy; a match with a different total is a
// reference mismatch under any strategy.
func (e *Engine) checkReference(ctx context.Context, in RuleInput) (invoices.CheckResult, error) {
	result := invoices.CheckResult{
		Name:   "reference_uniqueness",
		Passed: true,
		Reason: string(exceptions.ReasonReferenceMismatch),
	}

	vendor := in.Fields.Value(invoices.FieldVendorName)
	number := in.Fields.Value(invoices.FieldInvoiceNumber)
	if vendor == "" || number == "" {
		return result, nil
	}

	hit, err := e.invoices.ReferenceMatch(ctx, vendor, number, in.Invoice.ID)
	if err != nil {
		return result, transient(StageValidate, deadletter.WithCategory(deadletter.CategoryDatabase, err))
	}
	if hit == nil {
		return result, nil
	}

	total, errA := ParseCents(in.Fields.Value(invoices.FieldTotalAmount))
	existing, errB := ParseCents(hit.TotalValue)
	sameTotal := errA == nil && errB == nil && total == existing

	if sameTotal {
		if e.cfg.DedupStrategy == ingestion.StrategyComposite &&
			(e.cfg.DedupWindow <= 0 || time.Since(hit.CreatedAt) <= e.cfg.DedupWindow) {
			result.Passed = false
			result.Reason = string(exceptions.ReasonDuplicate)
			result.Detail = fmt.Sprintf("matches invoice %s", hit.InvoiceID)
		}
		return result, nil
	}

	result.Passed = false
	result.Detail = fmt.Sprintf("invoice %s shares reference with total %s", hit.InvoiceID, hit.TotalValue)
	return result, nil
}

func checkPositiveTotal(in RuleInput) invoices.CheckResult {
	result := invoices.CheckResult{
		Name:   "positive_total",
		Passed: true,
		Reason: string(exceptions.ReasonBusinessRule),
	}

	total, err := ParseCents(in.Fields.Value(invoices.FieldTotalAmount))
	if err != nil {
		return result
	}

	if total <= 0 {
		result.Passed = false
		result.Detail = FormatCents(total)
	}
	return result
}

func checkPeriodOpen(in RuleInput, closed []string) invoices.CheckResult {
	result := invoices.CheckResult{
		Name:   "period_open",
		Passed: true,
		Reason: string(exceptions.ReasonPeriodClosed),
	}

	issued, ok := parseFieldDate(in.Fields.Value(invoices.FieldInvoiceDate))
	if !ok {
		return result
	}

	period := issued.Format("2006-01")
	for _, p := range closed {
		if p == period {
			result.Passed = false
			result.Detail = period
			return result
		}
	}
	return result
}
