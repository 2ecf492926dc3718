// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package invoice assembles candidate invoice records from classified blocks.
package invoice

import (
	"strings"
	"time"

	"github.com/jcodagnone/fieldex/fields"
	"github.com/shopspring/decimal"
)

// VatTolerance is the largest accepted |net + vat - gross|.
var VatTolerance = decimal.RequireFromString("0.02")

var hundred = decimal.NewFromInt(100)

// Invoice is a candidate invoice record.
type Invoice struct {
	ID               string              `json:"id"`
	DocumentID       string              `json:"document_id"`
	Number           string              `json:"number"`
	Date             time.Time           `json:"date"`
	IssuerName       string              `json:"issuer_name"`
	IssuerStreet     string              `json:"issuer_street"`
	IssuerPostalCode string              `json:"issuer_postal_code"`
	IssuerCity       string              `json:"issuer_city"`
	NetTotal         decimal.NullDecimal `json:"net_total"`
	VatTotal         decimal.NullDecimal `json:"vat_total"`
	GrossTotal       decimal.NullDecimal `json:"gross_total"`
	// Confidence is the minimum confidence of the extracted fields.
	Confidence      float64                  `json:"confidence"`
	FieldConfidence map[fields.Label]float64 `json:"field_confidence,omitempty"`
	ModelVersion    string                   `json:"model_version"`
	CreatedAt       time.Time                `json:"created_at"`
}

// HasDate reports whether the date is known.
func (inv *Invoice) HasDate() bool {
	return !inv.Date.IsZero()
}

// VatRate is VatTotal / NetTotal * 100, zero when either is missing or the
// net total is zero.
func (inv *Invoice) VatRate() decimal.Decimal {
	if !inv.NetTotal.Valid || !inv.VatTotal.Valid || inv.NetTotal.Decimal.IsZero() {
		return decimal.Zero
	}

	return inv.VatTotal.Decimal.Div(inv.NetTotal.Decimal).Mul(hundred)
}

// VatDifference is |net + vat - gross|. ok is false when a total is missing.
func (inv *Invoice) VatDifference() (diff decimal.Decimal, ok bool) {
	if !inv.NetTotal.Valid || !inv.VatTotal.Valid || !inv.GrossTotal.Valid {
		return decimal.Zero, false
	}

	return inv.NetTotal.Decimal.Add(inv.VatTotal.Decimal).Sub(inv.GrossTotal.Decimal).Abs(), true
}

// IsValid reports whether the totals add up within VatTolerance.
func (inv *Invoice) IsValid() bool {
	diff, ok := inv.VatDifference()

	return ok && diff.LessThanOrEqual(VatTolerance)
}

// HasFinancials reports whether the three totals are present and not
// negative, with a positive gross total.
func (inv *Invoice) HasFinancials() bool {
	for _, v := range []decimal.NullDecimal{inv.NetTotal, inv.VatTotal, inv.GrossTotal} {
		if !v.Valid || v.Decimal.IsNegative() {
			return false
		}
	}

	return inv.GrossTotal.Decimal.IsPositive()
}

// HasAddress reports whether every issuer field is filled in.
func (inv *Invoice) HasAddress() bool {
	for _, s := range []string{inv.IssuerName, inv.IssuerStreet, inv.IssuerPostalCode, inv.IssuerCity} {
		if strings.TrimSpace(s) == "" {
			return false
		}
	}

	return true
}

// Value returns the extracted value of a field as text, "" when missing.
func (inv *Invoice) Value(l fields.Label) string {
	switch l {
	case fields.InvoiceNumber:
		return inv.Number
	case fields.InvoiceDate:
		if inv.HasDate() {
			return inv.Date.Format(time.DateOnly)
		}
	case fields.IssuerName:
		return inv.IssuerName
	case fields.IssuerStreet:
		return inv.IssuerStreet
	case fields.IssuerPostalCode:
		return inv.IssuerPostalCode
	case fields.IssuerCity:
		return inv.IssuerCity
	case fields.NetTotal:
		return nullString(inv.NetTotal)
	case fields.VatTotal:
		return nullString(inv.VatTotal)
	case fields.GrossTotal:
		return nullString(inv.GrossTotal)
	case fields.None:
	}

	return ""
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}

	return d.Decimal.StringFixed(2)
}
