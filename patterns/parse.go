// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package patterns

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var currencyTokens = []string{"€", "EUR", "USD", "$", " ", " "}

// ParseAmount converts a single amount token to a decimal. Both the German
// (1.234,56) and the English (1,234.56) grouping conventions are accepted; the
// right-most separator is the decimal one when both are present. A single
// separator followed by exactly three digits is a thousands separator.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}

	if s == "" {
		return decimal.Zero, false
	}

	lastDot, lastComma := strings.LastIndexByte(s, '.'), strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}

	return d, true
}

// LastAmount returns the right-most amount found in text that is not part of
// a date.
func LastAmount(text string) (decimal.Decimal, bool) {
	hits := Match(text)
	dates := Filter(hits, CategoryDate)

	var (
		best  Hit
		found bool
	)

	for _, h := range Filter(hits, CategoryAmount) {
		if overlapsAny(h, dates) {
			continue
		}

		if !found || h.End > best.End || (h.End == best.End && h.Start < best.Start) {
			best, found = h, true
		}
	}

	if !found {
		return decimal.Zero, false
	}

	return ParseAmount(best.Text)
}

func overlapsAny(h Hit, others []Hit) bool {
	for _, o := range others {
		if h.Overlaps(o) {
			return true
		}
	}

	return false
}

var dateLayouts = []string{
	"2.1.2006",
	"2.1.06",
	"2006-01-02",
	"2006-1-2",
}

// ParseDate parses a German or ISO date token.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// FindDate returns the first parseable date found in text.
func FindDate(text string) (time.Time, bool) {
	for _, h := range Filter(Match(text), CategoryDate) {
		if t, ok := ParseDate(h.Text); ok {
			return t, true
		}
	}

	return time.Time{}, false
}

// FindInvoiceNumber returns the value of the most confident invoice number
// hit in text.
func FindInvoiceNumber(text string) (string, bool) {
	var (
		best  Hit
		found bool
	)

	for _, h := range Filter(Match(text), CategoryInvoiceNumber) {
		if !found || h.Confidence > best.Confidence {
			best, found = h, true
		}
	}

	return best.Value, found
}
