// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"strings"
	"time"

	"github.com/jcodagnone/fieldex/invoice"
)

// Filter selects invoices. Predicate renders the filter as a SQL boolean
// expression over the invoices table; Match applies the same condition in
// memory. Both must agree.
type Filter interface {
	Predicate() (string, []any)
	Match(inv *invoice.Invoice) bool
}

type allFilter struct{}

// All matches every invoice.
func All() Filter { return allFilter{} }

func (allFilter) Predicate() (string, []any)  { return "TRUE", nil }
func (allFilter) Match(*invoice.Invoice) bool { return true }

type dateRange struct {
	from, to time.Time
}

// DateRange matches invoices dated between from and to, both inclusive. A
// zero bound is open. Invoices without a date never match.
func DateRange(from, to time.Time) Filter {
	return dateRange{from: from, to: to}
}

func (f dateRange) Predicate() (string, []any) {
	conds := []string{"date IS NOT NULL"}

	var args []any

	if !f.from.IsZero() {
		conds = append(conds, "date >= CAST(? AS DATE)")
		args = append(args, f.from.Format(time.DateOnly))
	}

	if !f.to.IsZero() {
		conds = append(conds, "date <= CAST(? AS DATE)")
		args = append(args, f.to.Format(time.DateOnly))
	}

	return "(" + strings.Join(conds, " AND ") + ")", args
}

func (f dateRange) Match(inv *invoice.Invoice) bool {
	if !inv.HasDate() {
		return false
	}

	d := truncate(inv.Date)

	return (f.from.IsZero() || !d.Before(truncate(f.from))) && (f.to.IsZero() || !d.After(truncate(f.to)))
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type minConfidence float64

// MinConfidence matches invoices whose confidence is at least c.
func MinConfidence(c float64) Filter { return minConfidence(c) }

func (f minConfidence) Predicate() (string, []any) {
	return "confidence >= ?", []any{float64(f)}
}

func (f minConfidence) Match(inv *invoice.Invoice) bool {
	return inv.Confidence >= float64(f)
}

type number string

// Number matches invoices with the given number, ignoring case and
// surrounding spaces.
func Number(n string) Filter { return number(strings.TrimSpace(n)) }

func (f number) Predicate() (string, []any) {
	return "lower(trim(number)) = lower(?)", []any{string(f)}
}

func (f number) Match(inv *invoice.Invoice) bool {
	return strings.EqualFold(strings.TrimSpace(inv.Number), string(f))
}

type and []Filter

// And matches invoices matching every filter. And() matches everything.
func And(filters ...Filter) Filter { return and(filters) }

func (f and) Predicate() (string, []any) {
	if len(f) == 0 {
		return All().Predicate()
	}

	conds := make([]string, 0, len(f))

	var args []any

	for _, sub := range f {
		c, a := sub.Predicate()
		conds = append(conds, "("+c+")")
		args = append(args, a...)
	}

	return strings.Join(conds, " AND "), args
}

func (f and) Match(inv *invoice.Invoice) bool {
	for _, sub := range f {
		if !sub.Match(inv) {
			return false
		}
	}

	return true
}
