// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package invoice

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/patterns"
	"github.com/shopspring/decimal"
)

// Candidate is a block predicted to hold a field.
type Candidate struct {
	Label      fields.Label       `json:"label"`
	Confidence float64            `json:"confidence"`
	Block      document.TextBlock `json:"block"`
}

var (
	rePostalCity = regexp.MustCompile(`^(?:D-)?(\d{5})\s+(.+)$`)
	reFieldLabel = regexp.MustCompile(`(?i)^(?:rechnungs?(?:nummer|datum)?|re-?nr|invoice|datum|date|nr|no)\.?\s*:?\s*`)
)

// Aggregate builds the candidate invoice of a document from its classified
// blocks, given in reading order. For every label the most confident block
// wins, the first one on ties. A field counts as extracted when its value
// parses; the invoice confidence is the minimum confidence of the extracted
// fields, 0 when none was.
func Aggregate(docID string, cands []Candidate, modelVersion string) *Invoice {
	var (
		best  [fields.Count]*Candidate
		conf  = make(map[fields.Label]float64)
		inv   = &Invoice{ID: uuid.NewString(), DocumentID: docID, ModelVersion: modelVersion, CreatedAt: time.Now().UTC()}
		found = func(l fields.Label, c *Candidate) { conf[l] = c.Confidence }
	)

	for i := range cands {
		c := &cands[i]
		if c.Label == fields.None || !c.Label.Valid() {
			continue
		}

		if best[c.Label] == nil || c.Confidence > best[c.Label].Confidence {
			best[c.Label] = c
		}
	}

	for _, l := range fields.All() {
		c := best[l]
		if c == nil {
			continue
		}

		text := strings.Join(strings.Fields(c.Block.Text), " ")

		switch l {
		case fields.InvoiceNumber:
			if n, ok := patterns.FindInvoiceNumber(text); ok {
				inv.Number = n
			} else {
				inv.Number = reFieldLabel.ReplaceAllString(text, "")
			}

			if inv.Number != "" {
				found(l, c)
			}
		case fields.InvoiceDate:
			if d, ok := patterns.FindDate(text); ok {
				inv.Date = d
				found(l, c)
			}
		case fields.IssuerName:
			if text != "" {
				inv.IssuerName = text
				found(l, c)
			}
		case fields.IssuerStreet:
			if text != "" {
				inv.IssuerStreet = text
				found(l, c)
			}
		case fields.IssuerPostalCode, fields.IssuerCity:
			aggregatePlace(inv, l, text, c, found)
		case fields.NetTotal, fields.VatTotal, fields.GrossTotal:
			if d, ok := patterns.LastAmount(text); ok {
				setAmount(inv, l, d)
				found(l, c)
			}
		case fields.None:
		}
	}

	if len(conf) > 0 {
		inv.FieldConfidence = conf
		inv.Confidence = 1

		for _, v := range conf {
			inv.Confidence = min(inv.Confidence, v)
		}
	}

	return inv
}

// aggregatePlace fills postal code and city. A "12345 City" line fills both,
// without overriding a city or postal code coming from its own block.
func aggregatePlace(inv *Invoice, l fields.Label, text string, c *Candidate, found func(fields.Label, *Candidate)) {
	if text == "" {
		return
	}

	m := rePostalCity.FindStringSubmatch(text)
	if m == nil {
		if l == fields.IssuerPostalCode {
			inv.IssuerPostalCode = text
		} else {
			inv.IssuerCity = text
		}

		found(l, c)

		return
	}

	if l == fields.IssuerPostalCode || inv.IssuerPostalCode == "" {
		inv.IssuerPostalCode = m[1]
		found(fields.IssuerPostalCode, c)
	}

	if l == fields.IssuerCity || inv.IssuerCity == "" {
		inv.IssuerCity = m[2]
		found(fields.IssuerCity, c)
	}
}

func setAmount(inv *Invoice, l fields.Label, d decimal.Decimal) {
	v := decimal.NewNullDecimal(d)

	switch l {
	case fields.NetTotal:
		inv.NetTotal = v
	case fields.VatTotal:
		inv.VatTotal = v
	case fields.GrossTotal:
		inv.GrossTotal = v
	default:
	}
}
