// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package fields defines the closed set of semantic invoice fields a text
// block can be classified into.
package fields

import (
	"fmt"
	"strings"
)

// Label is a semantic field type. The zero value is None.
type Label int8

const (
	// None marks a block that carries no field of interest.
	None Label = iota
	InvoiceNumber
	InvoiceDate
	IssuerName
	IssuerStreet
	IssuerPostalCode
	IssuerCity
	NetTotal
	VatTotal
	GrossTotal
)

// Count is the size of the label space.
const Count = int(GrossTotal) + 1

var names = [Count]string{
	None:             "none",
	InvoiceNumber:    "invoice_number",
	InvoiceDate:      "invoice_date",
	IssuerName:       "issuer_name",
	IssuerStreet:     "issuer_street",
	IssuerPostalCode: "issuer_postal_code",
	IssuerCity:       "issuer_city",
	NetTotal:         "net_total",
	VatTotal:         "vat_total",
	GrossTotal:       "gross_total",
}

// aliases accepted by Parse besides the canonical names.
var aliases = map[string]Label{
	"":               None,
	"other":          None,
	"number":         InvoiceNumber,
	"invoicenumber":  InvoiceNumber,
	"date":           InvoiceDate,
	"invoicedate":    InvoiceDate,
	"issuer":         IssuerName,
	"issuer_address": IssuerStreet,
	"street":         IssuerStreet,
	"postal_code":    IssuerPostalCode,
	"zip":            IssuerPostalCode,
	"city":           IssuerCity,
	"net":            NetTotal,
	"vat":            VatTotal,
	"tax":            VatTotal,
	"gross":          GrossTotal,
	"total":          GrossTotal,
}

// All returns every label in index order.
func All() []Label {
	ret := make([]Label, Count)
	for i := range ret {
		ret[i] = Label(i)
	}

	return ret
}

// Index returns the position of the label in All().
func (l Label) Index() int {
	return int(l)
}

// Valid reports whether l belongs to the label space.
func (l Label) Valid() bool {
	return l >= None && int(l) < Count
}

func (l Label) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Label(%d)", int8(l))
	}

	return names[l]
}

// IsAmount reports whether the field holds a monetary value.
func (l Label) IsAmount() bool {
	return l == NetTotal || l == VatTotal || l == GrossTotal
}

// IsAddress reports whether the field is part of the issuer address block.
func (l Label) IsAddress() bool {
	return l == IssuerName || l == IssuerStreet || l == IssuerPostalCode || l == IssuerCity
}

// Parse converts a label name (or a known alias) into a Label.
func Parse(s string) (Label, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")

	for i, name := range names {
		if key == name {
			return Label(i), nil
		}
	}

	if l, ok := aliases[key]; ok {
		return l, nil
	}

	return None, fmt.Errorf("unknown field label %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid field label %d", int8(l))
	}

	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Label) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}

	*l = v

	return nil
}
