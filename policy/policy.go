// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy turns a candidate invoice and its extraction confidence into
// an accept, review or reject decision.
//
// Decide is a pure function: it reads the candidate and the existing
// invoices and never mutates them. Business outcomes such as duplicates or
// suspicious amounts are reported as reasons, never as errors.
package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/invoice"
	"github.com/shopspring/decimal"
)

// Level is a confidence band.
type Level int

const (
	LevelVeryLow Level = iota
	LevelLow
	LevelMedium
	LevelHigh
)

var levelNames = [...]string{"very_low", "low", "medium", "high"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("Level(%d)", int(l))
	}

	return levelNames[l]
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err == nil {
		*l = v
	}

	return err
}

// ParseLevel parses the name of a level.
func ParseLevel(s string) (Level, error) {
	return parse[Level]("level", levelNames[:], s)
}

// GetLevel maps a confidence to its band. Each threshold belongs to the
// higher band.
func (c Config) GetLevel(confidence float64) Level {
	switch {
	case confidence >= c.HighConfidence:
		return LevelHigh
	case confidence >= c.MediumConfidence:
		return LevelMedium
	case confidence >= c.LowConfidence:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// Decision is the outcome for a whole invoice.
type Decision int

const (
	Review Decision = iota
	Accept
	Reject
)

var decisionNames = [...]string{"review", "accept", "reject"}

func (d Decision) String() string {
	if d < 0 || int(d) >= len(decisionNames) {
		return fmt.Sprintf("Decision(%d)", int(d))
	}

	return decisionNames[d]
}

// MarshalText implements encoding.TextMarshaler.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decision) UnmarshalText(b []byte) error {
	v, err := ParseDecision(string(b))
	if err == nil {
		*d = v
	}

	return err
}

// ParseDecision parses the name of a decision.
func ParseDecision(s string) (Decision, error) {
	return parse[Decision]("decision", decisionNames[:], s)
}

// Severity says what a reason does to the decision.
type Severity int

const (
	// SeverityInfo reasons are reported and change nothing.
	SeverityInfo Severity = iota
	// SeverityReview reasons prevent automatic acceptance.
	SeverityReview
	// SeverityReject reasons make the invoice rejectable.
	SeverityReject
)

var severityNames = [...]string{"info", "review", "reject"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("Severity(%d)", int(s))
	}

	return severityNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := parse[Severity]("severity", severityNames[:], string(b))
	if err == nil {
		*s = v
	}

	return err
}

func parse[T ~int](what string, names []string, s string) (T, error) {
	i := slices.Index(names, strings.ToLower(strings.TrimSpace(s)))
	if i < 0 {
		return 0, fmt.Errorf("unknown %s %q", what, s)
	}

	return T(i), nil
}

// Reason codes.
const (
	CodeDuplicate            = "duplicate"
	CodeSuspiciousAmount     = "suspicious_amount"
	CodeSuspiciousVatRate    = "suspicious_vat_rate"
	CodeVatMismatch          = "vat_mismatch"
	CodeNonStandardVatRate   = "non_standard_vat_rate"
	CodeIncompleteAddress    = "incomplete_address"
	CodeIncompleteFinancials = "incomplete_financials"
	CodeMissingField         = "missing_field"
	CodeLowConfidence        = "low_confidence"
)

// Reason is one triggered rule.
type Reason struct {
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Severity Severity     `json:"severity"`
	Field    fields.Label `json:"field,omitempty"`
}

// Blocking reports whether the reason makes the invoice rejectable.
func (r Reason) Blocking() bool { return r.Severity == SeverityReject }

// Result is a decision plus everything that led to it.
type Result struct {
	Decision   Decision `json:"decision"`
	Level      Level    `json:"level"`
	Confidence float64  `json:"confidence"`
	Reasons    []Reason `json:"reasons"`
	// Duplicates holds the IDs of the matching existing invoices.
	Duplicates []string `json:"duplicates,omitempty"`
}

// Has reports whether a reason with the given code was triggered.
func (r *Result) Has(code string) bool {
	for _, reason := range r.Reasons {
		if reason.Code == code {
			return true
		}
	}

	return false
}

// Codes lists the triggered reason codes in order.
func (r *Result) Codes() []string {
	codes := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		codes = append(codes, reason.Code)
	}

	return codes
}

// Requirement is the role a field plays in the completeness checks.
type Requirement int

const (
	// NotRequired fields are never checked.
	NotRequired Requirement = iota
	// Required fields must be present on their own.
	Required
	// AddressPart fields are checked together as the issuer address.
	AddressPart
	// FinancialPart fields are checked together as the totals.
	FinancialPart
)

// RequirementOf returns the completeness role of a label.
func RequirementOf(l fields.Label) Requirement {
	switch l {
	case fields.None:
		return NotRequired
	case fields.InvoiceNumber, fields.InvoiceDate:
		return Required
	case fields.IssuerName, fields.IssuerStreet, fields.IssuerPostalCode, fields.IssuerCity:
		return AddressPart
	case fields.NetTotal, fields.VatTotal, fields.GrossTotal:
		return FinancialPart
	}

	panic(fmt.Sprintf("policy: no requirement for %v", l))
}

// Decide evaluates the candidate against the existing invoices. The result is
// Reject when any blocking reason fired, Accept when the confidence is high
// and nothing but informational reasons fired, Review otherwise.
func (c Config) Decide(candidate *invoice.Invoice, confidence float64, existing []*invoice.Invoice) Result {
	res := Result{Level: c.GetLevel(confidence), Confidence: confidence}

	add := func(code string, sev Severity, l fields.Label, format string, args ...any) {
		res.Reasons = append(res.Reasons, Reason{Code: code, Message: fmt.Sprintf(format, args...), Severity: sev, Field: l})
	}

	if candidate == nil {
		add(CodeMissingField, SeverityReject, fields.None, "no invoice candidate")

		res.Decision = Reject

		return res
	}

	res.Duplicates = c.duplicates(candidate, existing)
	if len(res.Duplicates) > 0 {
		add(CodeDuplicate, SeverityReview, fields.InvoiceNumber,
			"invoice %s with gross %s already exists within %d days: %s",
			candidate.Number, candidate.Value(fields.GrossTotal), c.DuplicateWindowDays, strings.Join(res.Duplicates, ", "))
	}

	if g := candidate.GrossTotal; g.Valid && (g.Decimal.GreaterThan(c.MaxAmount) || g.Decimal.LessThan(c.MinAmount)) {
		add(CodeSuspiciousAmount, SeverityReview, fields.GrossTotal,
			"gross total %s outside [%s, %s]", g.Decimal.StringFixed(2), c.MinAmount, c.MaxAmount)
	}

	if candidate.NetTotal.Valid && candidate.VatTotal.Valid && !candidate.NetTotal.Decimal.IsZero() {
		rate := candidate.VatRate()

		switch {
		case rate.LessThan(c.MinVatRate) || rate.GreaterThan(c.MaxVatRate):
			add(CodeSuspiciousVatRate, SeverityReview, fields.VatTotal,
				"implied VAT rate %s%% outside [%s, %s]", rate.StringFixed(2), c.MinVatRate, c.MaxVatRate)
		case !c.isStandardRate(rate):
			add(CodeNonStandardVatRate, SeverityInfo, fields.VatTotal,
				"implied VAT rate %s%% is not a standard rate", rate.StringFixed(2))
		}
	}

	if diff, ok := candidate.VatDifference(); ok && diff.GreaterThan(c.VatTolerance) {
		add(CodeVatMismatch, SeverityReject, fields.GrossTotal,
			"net + vat differs from gross by %s", diff.StringFixed(2))
	}

	var addressMissing, financialMissing []string

	for _, l := range fields.All() {
		switch RequirementOf(l) {
		case Required:
			if strings.TrimSpace(candidate.Value(l)) == "" {
				add(CodeMissingField, SeverityReject, l, "%s is missing", l)
			}
		case AddressPart:
			if strings.TrimSpace(candidate.Value(l)) == "" {
				addressMissing = append(addressMissing, l.String())
			}
		case FinancialPart:
			if candidate.Value(l) == "" {
				financialMissing = append(financialMissing, l.String())
			}
		case NotRequired:
		}
	}

	if len(addressMissing) > 0 {
		add(CodeIncompleteAddress, SeverityReject, fields.None, "issuer address lacks %s", strings.Join(addressMissing, ", "))
	}

	switch {
	case len(financialMissing) > 0:
		add(CodeIncompleteFinancials, SeverityReject, fields.None, "totals lack %s", strings.Join(financialMissing, ", "))
	case !candidate.HasFinancials():
		add(CodeIncompleteFinancials, SeverityReject, fields.None, "totals must not be negative and gross must be positive")
	}

	if res.Level != LevelHigh {
		add(CodeLowConfidence, SeverityReview, fields.None,
			"confidence %.2f is %s, %.2f required", confidence, res.Level, c.HighConfidence)
	}

	res.Decision = Accept

	for _, r := range res.Reasons {
		switch r.Severity {
		case SeverityReject:
			res.Decision = Reject
		case SeverityReview:
			if res.Decision == Accept {
				res.Decision = Review
			}
		case SeverityInfo:
		}
	}

	return res
}

// duplicates returns the IDs of existing invoices with the same number and
// gross total dated within the window of the candidate. Earlier invoices of
// the candidate's own document are not duplicates.
func (c Config) duplicates(candidate *invoice.Invoice, existing []*invoice.Invoice) []string {
	number := strings.TrimSpace(candidate.Number)
	if number == "" || !candidate.GrossTotal.Valid || !candidate.HasDate() {
		return nil
	}

	var ids []string

	for _, e := range existing {
		if e == nil || (e.ID != "" && e.ID == candidate.ID) {
			continue
		}

		if candidate.DocumentID != "" && e.DocumentID == candidate.DocumentID {
			continue
		}

		if !strings.EqualFold(strings.TrimSpace(e.Number), number) ||
			!e.GrossTotal.Valid || !e.GrossTotal.Decimal.Equal(candidate.GrossTotal.Decimal) || !e.HasDate() {
			continue
		}

		if d := candidate.Date.Sub(e.Date).Abs(); d <= c.DuplicateWindow() {
			ids = append(ids, e.ID)
		}
	}

	return ids
}

func (c Config) isStandardRate(rate decimal.Decimal) bool {
	for _, std := range c.StandardRates {
		if rate.Sub(std).Abs().LessThanOrEqual(c.RateTolerance) {
			return true
		}
	}

	return false
}
