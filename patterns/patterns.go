// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package patterns scores block text against a fixed catalogue of invoice
// patterns: invoice numbers, dates, amounts, currencies, e-mail addresses and
// phone numbers.
package patterns

import (
	"fmt"
	"regexp"
	"slices"
)

// Category groups patterns that recognise the same kind of value.
type Category int8

const (
	CategoryInvoiceNumber Category = iota
	CategoryDate
	CategoryAmount
	CategoryCurrency
	CategoryEmail
	CategoryPhone
)

// NumCategories is the number of categories.
const NumCategories = int(CategoryPhone) + 1

var categoryNames = [NumCategories]string{
	"invoice_number",
	"date",
	"amount",
	"currency",
	"email",
	"phone",
}

func (c Category) String() string {
	if c < 0 || int(c) >= NumCategories {
		return fmt.Sprintf("Category(%d)", c)
	}

	return categoryNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Categories returns every category in declaration order.
func Categories() []Category {
	ret := make([]Category, NumCategories)
	for i := range ret {
		ret[i] = Category(i)
	}

	return ret
}

// Pattern is one entry of the catalogue. When Regexp has a capture group, the
// first group is the value of the hit.
type Pattern struct {
	Name       string
	Category   Category
	Regexp     *regexp.Regexp
	Confidence float64
}

// Hit is a match of a pattern against a text. Start and End are byte offsets.
type Hit struct {
	Pattern    string   `json:"pattern"`
	Text       string   `json:"text"`
	Value      string   `json:"value"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// Overlaps reports whether both hits share at least one byte.
func (h Hit) Overlaps(o Hit) bool {
	return h.Start < o.End && o.Start < h.End
}

var catalogue = []Pattern{
	{
		Name:       "invoice_number_labeled",
		Category:   CategoryInvoiceNumber,
		Regexp:     regexp.MustCompile(`(?i)\b(?:rechnungs?-?\s?(?:nr|nummer|no)|re-?nr|beleg-?nr|invoice\s*(?:no|nr|number|#))\.?\s*:?\s*#?\s*([A-Z0-9][A-Z0-9\-/]*\d[A-Z0-9\-/]*)`),
		Confidence: 0.95,
	},
	{
		Name:       "invoice_number_code",
		Category:   CategoryInvoiceNumber,
		Regexp:     regexp.MustCompile(`\b[A-Z]{2,4}[-/]?\d{2,}(?:[-/]\d+)*\b`),
		Confidence: 0.75,
	},
	{
		Name:       "date_german",
		Category:   CategoryDate,
		Regexp:     regexp.MustCompile(`\b(?:0?[1-9]|[12]\d|3[01])\.(?:0?[1-9]|1[0-2])\.(?:\d{4}|\d{2})\b`),
		Confidence: 0.9,
	},
	{
		Name:       "date_iso",
		Category:   CategoryDate,
		Regexp:     regexp.MustCompile(`\b\d{4}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01])\b`),
		Confidence: 0.9,
	},
	{
		Name:       "amount_german",
		Category:   CategoryAmount,
		Regexp:     regexp.MustCompile(`-?\b(?:\d{1,3}(?:\.\d{3})+|\d+),\d{2}\b`),
		Confidence: 0.85,
	},
	{
		Name:       "amount_english",
		Category:   CategoryAmount,
		Regexp:     regexp.MustCompile(`-?\b(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}\b`),
		Confidence: 0.8,
	},
	{
		Name:       "currency_euro_sign",
		Category:   CategoryCurrency,
		Regexp:     regexp.MustCompile(`€`),
		Confidence: 0.9,
	},
	{
		Name:       "currency_eur",
		Category:   CategoryCurrency,
		Regexp:     regexp.MustCompile(`\bEUR\b`),
		Confidence: 0.9,
	},
	{
		Name:       "currency_usd",
		Category:   CategoryCurrency,
		Regexp:     regexp.MustCompile(`\bUSD\b`),
		Confidence: 0.9,
	},
	{
		Name:       "currency_dollar_sign",
		Category:   CategoryCurrency,
		Regexp:     regexp.MustCompile(`\$`),
		Confidence: 0.8,
	},
	{
		Name:       "email",
		Category:   CategoryEmail,
		Regexp:     regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
		Confidence: 0.95,
	},
	{
		Name:       "phone",
		Category:   CategoryPhone,
		Regexp:     regexp.MustCompile(`(?:\+\d{1,3}[\s\-]?(?:\(0\)\s?)?\d{2,5}|\(0\d{2,5}\)|\b0\d{2,5})[\s\-/]?\d{3,}(?:[\s\-]\d{2,})*`),
		Confidence: 0.7,
	},
}

// Catalogue returns a copy of the pattern catalogue in matching order.
func Catalogue() []Pattern {
	return slices.Clone(catalogue)
}

// Match returns every match of every pattern against text, in catalogue order
// and then by position. Overlapping matches are all kept.
func Match(text string) []Hit {
	if text == "" {
		return nil
	}

	var ret []Hit

	for _, p := range catalogue {
		for _, loc := range p.Regexp.FindAllStringSubmatchIndex(text, -1) {
			h := Hit{
				Pattern:    p.Name,
				Text:       text[loc[0]:loc[1]],
				Start:      loc[0],
				End:        loc[1],
				Category:   p.Category,
				Confidence: p.Confidence,
			}

			h.Value = h.Text
			if len(loc) >= 4 && loc[2] >= 0 {
				h.Value = text[loc[2]:loc[3]]
			}

			ret = append(ret, h)
		}
	}

	return ret
}

// CountByCategory counts the hits of each category, indexed by Category.
func CountByCategory(hits []Hit) [NumCategories]int {
	var ret [NumCategories]int

	for _, h := range hits {
		if h.Category >= 0 && int(h.Category) < NumCategories {
			ret[h.Category]++
		}
	}

	return ret
}

// MaxConfidence returns the highest confidence among the hits of category c,
// 0 when there are none.
func MaxConfidence(hits []Hit, c Category) float64 {
	var ret float64

	for _, h := range hits {
		if h.Category == c && h.Confidence > ret {
			ret = h.Confidence
		}
	}

	return ret
}

// Filter returns the hits of category c.
func Filter(hits []Hit, c Category) []Hit {
	var ret []Hit

	for _, h := range hits {
		if h.Category == c {
			ret = append(ret, h)
		}
	}

	return ret
}
