// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package invoice

import (
	"testing"
	"time"

	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/fields"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestVatRate(t *testing.T) {
	inv := &Invoice{NetTotal: amount("1000.00"), VatTotal: amount("190.00")}
	assert.True(t, decimal.NewFromInt(19).Equal(inv.VatRate()), inv.VatRate().String())

	inv.NetTotal = amount("0")
	assert.True(t, inv.VatRate().IsZero())

	inv.NetTotal = decimal.NullDecimal{}
	assert.True(t, inv.VatRate().IsZero())
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		gross string
		want  bool
	}{
		{"1190.00", true},
		{"1190.02", true},
		{"1189.98", true},
		{"1190.03", false},
		{"1189.97", false},
	}

	for _, tt := range tests {
		t.Run(tt.gross, func(t *testing.T) {
			inv := &Invoice{NetTotal: amount("1000.00"), VatTotal: amount("190.00"), GrossTotal: amount(tt.gross)}
			assert.Equal(t, tt.want, inv.IsValid())
		})
	}

	assert.False(t, (&Invoice{NetTotal: amount("1"), VatTotal: amount("0")}).IsValid())
}

func TestHasFinancials(t *testing.T) {
	inv := &Invoice{NetTotal: amount("0"), VatTotal: amount("0"), GrossTotal: amount("1")}
	assert.True(t, inv.HasFinancials())

	inv.GrossTotal = amount("0")
	assert.False(t, inv.HasFinancials())

	inv.GrossTotal = amount("10")
	inv.VatTotal = amount("-1")
	assert.False(t, inv.HasFinancials())

	inv.VatTotal = decimal.NullDecimal{}
	assert.False(t, inv.HasFinancials())
}

func TestHasAddress(t *testing.T) {
	inv := &Invoice{IssuerName: "Muster GmbH", IssuerStreet: "Musterstraße 12", IssuerPostalCode: "10115", IssuerCity: "Berlin"}
	assert.True(t, inv.HasAddress())

	inv.IssuerCity = "  "
	assert.False(t, inv.HasAddress())
}

func candidate(l fields.Label, conf float64, text string, line int) Candidate {
	return Candidate{Label: l, Confidence: conf, Block: document.TextBlock{Text: text, Page: 1, LineIndex: line}}
}

func TestAggregate(t *testing.T) {
	cands := []Candidate{
		candidate(fields.IssuerName, 0.97, "Muster GmbH", 0),
		candidate(fields.IssuerStreet, 0.91, "Musterstraße  12", 1),
		candidate(fields.IssuerPostalCode, 0.88, "10115 Berlin", 2),
		candidate(fields.InvoiceNumber, 0.95, "Rechnung Nr. RE-2025-001", 3),
		candidate(fields.InvoiceNumber, 0.60, "RE-9999-999", 4),
		candidate(fields.InvoiceDate, 0.93, "Datum: 15.01.2025", 5),
		candidate(fields.None, 0.99, "Vielen Dank", 6),
		candidate(fields.NetTotal, 0.90, "Netto 1.000,00 EUR", 7),
		candidate(fields.VatTotal, 0.85, "MwSt 19% 190,00 EUR", 8),
		candidate(fields.GrossTotal, 0.92, "Gesamt 1.190,00 EUR", 9),
	}

	inv := Aggregate("doc-1", cands, "m1")

	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, "doc-1", inv.DocumentID)
	assert.Equal(t, "m1", inv.ModelVersion)
	assert.Equal(t, "RE-2025-001", inv.Number)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), inv.Date)
	assert.Equal(t, "Muster GmbH", inv.IssuerName)
	assert.Equal(t, "Musterstraße 12", inv.IssuerStreet)
	assert.Equal(t, "10115", inv.IssuerPostalCode)
	assert.Equal(t, "Berlin", inv.IssuerCity)
	assert.Equal(t, "1000.00", inv.Value(fields.NetTotal))
	assert.Equal(t, "190.00", inv.Value(fields.VatTotal))
	assert.Equal(t, "1190.00", inv.Value(fields.GrossTotal))
	assert.Equal(t, "2025-01-15", inv.Value(fields.InvoiceDate))

	assert.True(t, inv.IsValid())
	assert.True(t, inv.HasAddress())
	assert.True(t, inv.HasFinancials())

	assert.InDelta(t, 0.85, inv.Confidence, 1e-9)
	assert.InDelta(t, 0.88, inv.FieldConfidence[fields.IssuerCity], 1e-9)
	assert.InDelta(t, 0.95, inv.FieldConfidence[fields.InvoiceNumber], 1e-9)
	assert.NotContains(t, inv.FieldConfidence, fields.None)
}

func TestAggregateSeparateCity(t *testing.T) {
	inv := Aggregate("d", []Candidate{
		candidate(fields.IssuerPostalCode, 0.7, "D-80331 München", 0),
		candidate(fields.IssuerCity, 0.9, "Muenchen", 1),
	}, "m")

	assert.Equal(t, "80331", inv.IssuerPostalCode)
	assert.Equal(t, "Muenchen", inv.IssuerCity)
	assert.InDelta(t, 0.7, inv.Confidence, 1e-9)
}

func TestAggregateUnparseableFieldsDoNotCount(t *testing.T) {
	inv := Aggregate("d", []Candidate{
		candidate(fields.InvoiceDate, 0.2, "Datum: gestern", 0),
		candidate(fields.GrossTotal, 0.1, "Gesamt", 1),
		candidate(fields.InvoiceNumber, 0.8, "RE-1234", 2),
	}, "m")

	assert.False(t, inv.HasDate())
	assert.False(t, inv.GrossTotal.Valid)
	assert.InDelta(t, 0.8, inv.Confidence, 1e-9)
	require.Len(t, inv.FieldConfidence, 1)
}

func TestAggregateNothing(t *testing.T) {
	inv := Aggregate("d", nil, "m")

	assert.Zero(t, inv.Confidence)
	assert.Nil(t, inv.FieldConfidence)
	assert.False(t, inv.IsValid())
	assert.True(t, inv.VatRate().IsZero())
}
