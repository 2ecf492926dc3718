// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package training

import (
	"fmt"
	"testing"

	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/spatial"
	"github.com/stretchr/testify/require"
)

var (
	companies = []string{"Muster GmbH", "Beispiel AG", "Nordlicht KG", "Weber & Söhne GmbH", "Alpen Druck UG"}
	streets   = []string{"Musterstraße 12", "Hauptstr. 5", "Lindenallee 40a", "Am Ring 7", "Bahnhofweg 118"}
	cities    = []string{"10115 Berlin", "80331 München", "20095 Hamburg", "50667 Köln", "04109 Leipzig"}
	fillers   = []string{"Vielen Dank für Ihren Auftrag", "Pos. Beschreibung Menge", "Zahlbar innerhalb von 14 Tagen", "Beratung und Konzeption"}
)

type line struct {
	text  string
	label fields.Label
	x, w  float64
}

// syntheticDocument builds a one page invoice whose layout and wording
// depend on i.
func syntheticDocument(i int) []Sample {
	net := 100 * (i%17 + 1)
	vat := net * 19 / 100

	lines := []line{
		{companies[i%len(companies)], fields.IssuerName, 50, 200},
		{streets[i%len(streets)], fields.IssuerStreet, 50, 160},
		{cities[i%len(cities)], fields.IssuerPostalCode, 50, 140},
		{fmt.Sprintf("Rechnung Nr. RE-2025-%03d", i), fields.InvoiceNumber, 350, 200},
		{fmt.Sprintf("Datum: %02d.%02d.2025", i%28+1, i%12+1), fields.InvoiceDate, 350, 150},
		{fillers[i%len(fillers)], fields.None, 50, 300},
		{fillers[(i+1)%len(fillers)], fields.None, 50, 260},
		{fmt.Sprintf("Nettobetrag %d,00 EUR", net), fields.NetTotal, 330, 220},
		{fmt.Sprintf("MwSt 19%% %d,00 EUR", vat), fields.VatTotal, 330, 220},
		{fmt.Sprintf("Gesamtbetrag %d,00 EUR", net+vat), fields.GrossTotal, 330, 220},
	}

	ret := make([]Sample, len(lines))
	for j, l := range lines {
		y := 40 + float64(j)*22
		if j >= 7 {
			y = 600 + float64(j-7)*22
		}

		ret[j] = Sample{
			Text:       l.text,
			Label:      l.label,
			Page:       1,
			LineIndex:  j,
			Position:   j,
			Box:        spatial.Rect{X: l.x, Y: y, Width: l.w, Height: 18},
			PageWidth:  600,
			PageHeight: 800,
			DocumentID: fmt.Sprintf("doc-%03d", i),
		}
	}

	return ret
}

func syntheticSet(name string, from, n int) *Set {
	set := &Set{Name: name}
	for i := from; i < from+n; i++ {
		set.Samples = append(set.Samples, syntheticDocument(i)...)
	}

	return set
}

func newTestExtractor(t *testing.T) *features.Extractor {
	t.Helper()

	ex, err := features.NewExtractor(features.DefaultConfig())
	require.NoError(t, err)

	return ex
}

func testOptions() Options {
	o := DefaultOptions()
	o.ModelVersion = "test-model"
	o.Epochs = 300

	return o
}
