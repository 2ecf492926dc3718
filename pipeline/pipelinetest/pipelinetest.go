// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipelinetest provides a keyword driven model and sample documents
// for tests that need a working pipeline without training.
package pipelinetest

import (
	"fmt"
	"slices"
	"time"

	"github.com/jcodagnone/fieldex/classifier"
	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/spatial"
)

// weights maps every label to the features voting for it.
var weights = map[fields.Label]map[string]float64{
	fields.IssuerName:       {"text_legal_form": 10},
	fields.IssuerStreet:     {"text_street_like": 10},
	fields.IssuerPostalCode: {"text_postal_city": 10},
	fields.InvoiceNumber:    {"text_has_invoice_number": 10},
	fields.InvoiceDate:      {"text_has_date": 10},
	fields.NetTotal:         {"text_kw_net": 6, "text_has_amount": 6},
	fields.VatTotal:         {"text_kw_vat": 6, "text_has_amount": 6},
	fields.GrossTotal:       {"text_kw_gross": 6, "text_has_amount": 6},
}

// Model returns a model that labels the lines of Document with high
// confidence. Lines matching no rule are labeled none.
func Model(version string) *classifier.Model {
	names := features.Schema()

	m := &classifier.Model{
		Version:       version,
		SchemaVersion: features.SchemaVersion,
		Features:      names,
		Labels:        fields.All(),
		Mean:          make([]float64, len(names)),
		Scale:         make([]float64, len(names)),
		TrainedAt:     time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
	}

	for i := range m.Scale {
		m.Scale[i] = 1
	}

	for _, l := range m.Labels {
		w := make([]float64, len(names))
		for name, v := range weights[l] {
			w[slices.Index(names, name)] = v
		}

		bias := 0.0
		if l == fields.None {
			bias = 2
		}

		m.Weights = append(m.Weights, w)
		m.Bias = append(m.Bias, bias)
	}

	return m
}

// Engine returns an engine serving Model(version).
func Engine(version string) (*classifier.Engine, error) {
	e := classifier.NewEngine()
	if err := e.Swap(Model(version)); err != nil {
		return nil, err
	}

	return e, nil
}

// Line is one line of a sample document.
type Line struct {
	Text  string
	Label fields.Label
}

// Lines returns the lines of a complete German invoice with the given number,
// date and net amount in euro. The VAT is 19%.
func Lines(number string, date time.Time, net int) []Line {
	vat := net * 19 / 100

	return []Line{
		{"Muster GmbH", fields.IssuerName},
		{"Musterstraße 12", fields.IssuerStreet},
		{"10115 Berlin", fields.IssuerPostalCode},
		{"Rechnung Nr. " + number, fields.InvoiceNumber},
		{"Datum: " + date.Format("02.01.2006"), fields.InvoiceDate},
		{"Vielen Dank für Ihren Auftrag", fields.None},
		{"Pos. Beschreibung Menge", fields.None},
		{fmt.Sprintf("Nettobetrag %d,00 EUR", net), fields.NetTotal},
		{fmt.Sprintf("MwSt 19%% %d,00 EUR", vat), fields.VatTotal},
		{fmt.Sprintf("Gesamtbetrag %d,00 EUR", net+vat), fields.GrossTotal},
	}
}

// Document lays lines out on a single 600x800 page, the totals at the
// bottom.
func Document(id string, lines []Line) *document.Document {
	page := document.Page{Number: 1, Width: 600, Height: 800}

	for j, l := range lines {
		y := 40 + float64(j)*22
		if l.Label.IsAmount() {
			y = 600 + float64(j)*22
		}

		x := 50.0
		if l.Label == fields.InvoiceNumber || l.Label == fields.InvoiceDate || l.Label.IsAmount() {
			x = 330
		}

		page.Blocks = append(page.Blocks, document.TextBlock{
			Text:      l.Text,
			Page:      1,
			LineIndex: j,
			Position:  j,
			Box:       spatial.Rect{X: x, Y: y, Width: 220, Height: 18},
		})
	}

	d := &document.Document{ID: id, Pages: []document.Page{page}}
	d.Normalize()

	return d
}
