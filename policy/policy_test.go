// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/invoice"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

// complete returns a well formed invoice that passes every rule.
func complete() *invoice.Invoice {
	return &invoice.Invoice{
		ID:               "cand",
		Number:           "RE-2025-001",
		Date:             day(18),
		IssuerName:       "Muster GmbH",
		IssuerStreet:     "Musterstraße 12",
		IssuerPostalCode: "10115",
		IssuerCity:       "Berlin",
		NetTotal:         amount("1000.00"),
		VatTotal:         amount("190.00"),
		GrossTotal:       amount("1190.00"),
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unordered thresholds", func(c *Config) { c.MediumConfidence = 0.9 }},
		{"equal thresholds", func(c *Config) { c.LowConfidence = c.MediumConfidence }},
		{"high above one", func(c *Config) { c.HighConfidence = 1.5 }},
		{"negative window", func(c *Config) { c.DuplicateWindowDays = -1 }},
		{"amount bounds", func(c *Config) { c.MinAmount = c.MaxAmount }},
		{"rate bounds", func(c *Config) { c.MinVatRate = decimal.NewFromInt(60) }},
		{"negative tolerance", func(c *Config) { c.VatTolerance = decimal.NewFromInt(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestGetLevel(t *testing.T) {
	c := DefaultConfig()

	tests := []struct {
		conf float64
		want Level
	}{
		{0, LevelVeryLow},
		{0.2999, LevelVeryLow},
		{0.3, LevelLow},
		{0.4999, LevelLow},
		{0.5, LevelMedium},
		{0.7999, LevelMedium},
		{0.8, LevelHigh},
		{1, LevelHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.GetLevel(tt.conf), "%v", tt.conf)
	}

	// every point of [0,1] falls in exactly one band, and bands only grow
	prev := LevelVeryLow
	for i := 0; i <= 1000; i++ {
		l := c.GetLevel(float64(i) / 1000)
		assert.GreaterOrEqual(t, l, prev)
		prev = l
	}
}

func TestAccept(t *testing.T) {
	res := DefaultConfig().Decide(complete(), 0.82, nil)

	assert.Equal(t, Accept, res.Decision)
	assert.Equal(t, LevelHigh, res.Level)
	assert.Empty(t, res.Reasons)
}

func TestLowConfidenceReviews(t *testing.T) {
	res := DefaultConfig().Decide(complete(), 0.45, nil)

	assert.Equal(t, Review, res.Decision)
	assert.Equal(t, LevelLow, res.Level)
	assert.Equal(t, []string{CodeLowConfidence}, res.Codes())
}

func TestDuplicate(t *testing.T) {
	existing := []*invoice.Invoice{
		{ID: "old", Number: "RE-2025-001", GrossTotal: amount("1190.00"), Date: day(15)},
		{ID: "other-number", Number: "RE-2025-002", GrossTotal: amount("1190.00"), Date: day(15)},
		{ID: "other-gross", Number: "RE-2025-001", GrossTotal: amount("1190.01"), Date: day(15)},
		{ID: "too-old", Number: "RE-2025-001", GrossTotal: amount("1190.00"), Date: day(1)},
	}

	res := DefaultConfig().Decide(complete(), 0.95, existing)

	assert.Equal(t, Review, res.Decision)
	assert.True(t, res.Has(CodeDuplicate))
	assert.Equal(t, []string{"old"}, res.Duplicates)

	// the existing list is only read
	assert.Equal(t, "RE-2025-001", existing[0].Number)
	assert.Len(t, existing, 4)
}

func TestDuplicateWindowBoundary(t *testing.T) {
	existing := []*invoice.Invoice{{ID: "old", Number: "RE-2025-001", GrossTotal: amount("1190.00"), Date: day(11)}}

	res := DefaultConfig().Decide(complete(), 0.95, existing)
	assert.True(t, res.Has(CodeDuplicate), "7 days apart")

	existing[0].Date = day(10)
	res = DefaultConfig().Decide(complete(), 0.95, existing)
	assert.False(t, res.Has(CodeDuplicate), "8 days apart")
}

func TestDuplicateIgnoresItself(t *testing.T) {
	cand := complete()
	res := DefaultConfig().Decide(cand, 0.95, []*invoice.Invoice{cand})

	assert.Equal(t, Accept, res.Decision)
}

func TestDuplicateIgnoresSameDocument(t *testing.T) {
	cand := complete()
	cand.DocumentID = "doc-1"

	existing := []*invoice.Invoice{
		{ID: "previous-run", DocumentID: "doc-1", Number: "RE-2025-001", GrossTotal: amount("1190.00"), Date: day(18)},
	}

	res := DefaultConfig().Decide(cand, 0.95, existing)
	assert.Equal(t, Accept, res.Decision)
	assert.Empty(t, res.Duplicates)

	existing = append(existing, &invoice.Invoice{
		ID: "elsewhere", DocumentID: "doc-2", Number: "RE-2025-001", GrossTotal: amount("1190.00"), Date: day(18),
	})

	res = DefaultConfig().Decide(cand, 0.95, existing)
	assert.Equal(t, []string{"elsewhere"}, res.Duplicates)

	// without a document ID only the invoice ID is compared
	cand.DocumentID = ""
	res = DefaultConfig().Decide(cand, 0.95, existing[:1])
	assert.Equal(t, []string{"previous-run"}, res.Duplicates)
}

func TestVatConsistency(t *testing.T) {
	cand := complete()
	cand.GrossTotal = amount("1190.02")

	res := DefaultConfig().Decide(cand, 0.9, nil)
	assert.False(t, res.Has(CodeVatMismatch))
	assert.Equal(t, Accept, res.Decision)

	cand.GrossTotal = amount("1190.03")

	res = DefaultConfig().Decide(cand, 0.9, nil)
	assert.True(t, res.Has(CodeVatMismatch))
	assert.Equal(t, Reject, res.Decision)
}

func TestNonStandardRateIsInformational(t *testing.T) {
	cand := complete()
	cand.VatTotal = amount("160.00")
	cand.GrossTotal = amount("1160.00")

	res := DefaultConfig().Decide(cand, 0.9, nil)

	assert.Equal(t, Accept, res.Decision)
	require.Len(t, res.Reasons, 1)
	assert.Equal(t, CodeNonStandardVatRate, res.Reasons[0].Code)
	assert.Equal(t, SeverityInfo, res.Reasons[0].Severity)

	cand.VatTotal = amount("191.00")
	cand.GrossTotal = amount("1191.00")
	res = DefaultConfig().Decide(cand, 0.9, nil)
	assert.False(t, res.Has(CodeNonStandardVatRate), "19.1 percent is within tolerance")
}

func TestSuspicious(t *testing.T) {
	tests := []struct {
		name            string
		net, vat, gross string
		code            string
	}{
		{"too large", "1000000.00", "190000.00", "1190000.00", CodeSuspiciousAmount},
		{"too small", "0.00", "0.00", "0.001", CodeSuspiciousAmount},
		{"rate above bounds", "100.00", "60.00", "160.00", CodeSuspiciousVatRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := complete()
			cand.NetTotal, cand.VatTotal, cand.GrossTotal = amount(tt.net), amount(tt.vat), amount(tt.gross)

			res := DefaultConfig().Decide(cand, 0.95, nil)
			assert.True(t, res.Has(tt.code), "%v", res.Codes())
			assert.NotEqual(t, Accept, res.Decision)
		})
	}
}

func TestZeroNetHasNoRateChecks(t *testing.T) {
	cand := complete()
	cand.NetTotal, cand.VatTotal, cand.GrossTotal = amount("0"), amount("0"), amount("0.50")

	res := DefaultConfig().Decide(cand, 0.95, nil)

	assert.False(t, res.Has(CodeSuspiciousVatRate))
	assert.False(t, res.Has(CodeNonStandardVatRate))
	assert.True(t, res.Has(CodeVatMismatch))
}

func TestCompleteness(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*invoice.Invoice)
		code   string
	}{
		{"blank city", func(inv *invoice.Invoice) { inv.IssuerCity = " " }, CodeIncompleteAddress},
		{"no street", func(inv *invoice.Invoice) { inv.IssuerStreet = "" }, CodeIncompleteAddress},
		{"no vat", func(inv *invoice.Invoice) { inv.VatTotal = decimal.NullDecimal{} }, CodeIncompleteFinancials},
		{"negative net", func(inv *invoice.Invoice) {
			inv.NetTotal, inv.VatTotal, inv.GrossTotal = amount("-10"), amount("0"), amount("-10")
		}, CodeIncompleteFinancials},
		{"no number", func(inv *invoice.Invoice) { inv.Number = "" }, CodeMissingField},
		{"no date", func(inv *invoice.Invoice) { inv.Date = time.Time{} }, CodeMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := complete()
			tt.modify(cand)

			res := DefaultConfig().Decide(cand, 0.99, nil)
			assert.True(t, res.Has(tt.code), "%v", res.Codes())
			assert.Equal(t, Reject, res.Decision)
		})
	}
}

func TestNilCandidate(t *testing.T) {
	res := DefaultConfig().Decide(nil, 1, nil)

	assert.Equal(t, Reject, res.Decision)
	assert.True(t, res.Reasons[0].Blocking())
}

func TestRequirementCoversEveryLabel(t *testing.T) {
	want := map[fields.Label]Requirement{
		fields.None:             NotRequired,
		fields.InvoiceNumber:    Required,
		fields.InvoiceDate:      Required,
		fields.IssuerName:       AddressPart,
		fields.IssuerStreet:     AddressPart,
		fields.IssuerPostalCode: AddressPart,
		fields.IssuerCity:       AddressPart,
		fields.NetTotal:         FinancialPart,
		fields.VatTotal:         FinancialPart,
		fields.GrossTotal:       FinancialPart,
	}

	require.Len(t, want, fields.Count)

	for _, l := range fields.All() {
		assert.Equal(t, want[l], RequirementOf(l), "%v", l)
	}

	assert.Panics(t, func() { RequirementOf(fields.Label(99)) })
}

func TestEnumsText(t *testing.T) {
	assert.Equal(t, "very_low", LevelVeryLow.String())
	assert.Equal(t, "accept", Accept.String())
	assert.Equal(t, "Decision(9)", Decision(9).String())

	b, err := Reject.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "reject", string(b))
}

func TestEnumsParse(t *testing.T) {
	d, err := ParseDecision(" Review ")
	require.NoError(t, err)
	assert.Equal(t, Review, d)

	l, err := ParseLevel("very_low")
	require.NoError(t, err)
	assert.Equal(t, LevelVeryLow, l)

	_, err = ParseDecision("maybe")
	assert.Error(t, err)
}

func TestResultJSON(t *testing.T) {
	cand := complete()
	cand.IssuerCity = ""

	res := DefaultConfig().Decide(cand, 0.4, nil)

	b, err := json.Marshal(res)
	require.NoError(t, err)

	var got Result
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, res, got)
}
