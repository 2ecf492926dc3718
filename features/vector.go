// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package features

import (
	"math"
	"slices"

	"github.com/jcodagnone/fieldex/patterns"
)

// SchemaVersion identifies the layout of Vector. It must change whenever a
// feature is added, removed or reordered.
const SchemaVersion = "fx-1"

// Vector is the flattened numeric representation of a feature record.
// Names is parallel to Values.
type Vector struct {
	Values        []float64 `json:"values"`
	Names         []string  `json:"names"`
	SchemaVersion string    `json:"schema_version"`
	Valid         bool      `json:"valid"`
}

// Len returns the number of values.
func (v Vector) Len() int { return len(v.Values) }

// Get returns the value of the named feature.
func (v Vector) Get(name string) (float64, bool) {
	i := slices.Index(v.Names, name)
	if i < 0 || i >= len(v.Values) {
		return 0, false
	}

	return v.Values[i], true
}

// Set overrides the named feature. It reports whether the name exists.
func (v *Vector) Set(name string, value float64) bool {
	i := slices.Index(v.Names, name)
	if i < 0 || i >= len(v.Values) {
		return false
	}

	v.Values[i] = value

	return true
}

// IsValid reports whether the vector has the length and names of the current
// schema.
func (v Vector) IsValid() bool {
	return v.SchemaVersion == SchemaVersion &&
		len(v.Values) == VectorLength &&
		slices.Equal(v.Names, schema)
}

// schema is derived from a neutral record so that names and values cannot
// drift apart.
var schema = ExtractedFeature{}.vectorize().Names

// VectorLength is the number of features of the current schema.
var VectorLength = len(schema)

// Schema returns the ordered feature names of the current schema.
func Schema() []string {
	return slices.Clone(schema)
}

type builder struct {
	values []float64
	names  []string
}

func (b *builder) add(name string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}

	b.names = append(b.names, name)
	b.values = append(b.values, v)
}

func (b *builder) flag(name string, v bool) {
	if v {
		b.add(name, 1)
	} else {
		b.add(name, 0)
	}
}

// vectorize lays out the vector. The order of the calls is the schema.
// Valid is left to the caller.
func (f ExtractedFeature) vectorize() Vector {
	b := &builder{}

	p := f.Position
	b.add("pos_rel_x", p.RelX)
	b.add("pos_rel_y", p.RelY)
	b.add("pos_rel_width", p.RelWidth)
	b.add("pos_rel_height", p.RelHeight)
	b.add("pos_rel_center_x", p.RelCenterX)
	b.add("pos_rel_center_y", p.RelCenterY)
	b.add("pos_page_ratio", p.PageRatio)
	b.flag("pos_first_page", p.Page <= 1)

	bb := f.BoundingBox
	b.flag("bbox_valid", bb.Valid)
	b.add("bbox_rel_area", bb.RelArea)
	b.add("bbox_aspect_log", math.Log1p(bb.AspectRatio))

	l := f.Layout
	b.flag("layout_header", l.Region == RegionHeader)
	b.flag("layout_body", l.Region == RegionBody)
	b.flag("layout_footer", l.Region == RegionFooter)
	b.flag("layout_align_left", l.Alignment == AlignLeft)
	b.flag("layout_align_center", l.Alignment == AlignCenter)
	b.flag("layout_align_right", l.Alignment == AlignRight)
	b.add("layout_indentation", l.Indentation)
	b.flag("layout_aligned_prev", l.AlignedWithPrev)
	b.flag("layout_aligned_next", l.AlignedWithNext)

	c := f.Context
	b.flag("ctx_has_prev", c.HasPrev)
	b.flag("ctx_has_next", c.HasNext)
	b.add("ctx_gap_prev", gapFeature(c.GapPrev, f.Position.Height))
	b.add("ctx_gap_next", gapFeature(c.GapNext, f.Position.Height))
	b.flag("ctx_is_first", c.IsFirst)
	b.flag("ctx_is_last", c.IsLast)
	b.flag("ctx_isolated", c.Isolated)
	b.flag("ctx_prev_kw_invoice", c.PrevKeywords.Invoice)
	b.flag("ctx_prev_kw_date", c.PrevKeywords.Date)
	b.flag("ctx_prev_kw_net", c.PrevKeywords.Net)
	b.flag("ctx_prev_kw_vat", c.PrevKeywords.Vat)
	b.flag("ctx_prev_kw_gross", c.PrevKeywords.Gross)

	s := f.Statistical
	b.add("stat_chars_log", math.Log1p(float64(s.CharCount)))
	b.add("stat_words_log", math.Log1p(float64(s.WordCount)))
	b.add("stat_digit_ratio", s.DigitRatio)
	b.add("stat_letter_ratio", s.LetterRatio)
	b.add("stat_special_ratio", s.SpecialRatio)
	b.add("stat_upper_ratio", s.UpperRatio)
	b.add("stat_lower_ratio", s.LowerRatio)
	b.add("stat_avg_word_len", s.AvgWordLength/10)

	t := f.Text
	b.flag("text_has_number", t.ContainsNumber)
	b.flag("text_has_currency", t.ContainsCurrency)
	b.flag("text_has_date", t.ContainsDate)
	b.flag("text_has_email", t.ContainsEmail)
	b.flag("text_has_phone", t.ContainsPhone)
	b.flag("text_has_amount", t.ContainsAmount)
	b.flag("text_has_invoice_number", t.ContainsInvoiceNumber)
	b.flag("text_starts_digit", t.StartsWithDigit)
	b.flag("text_starts_letter", t.StartsWithLetter)
	b.flag("text_ends_punct", t.EndsWithPunct)
	b.flag("text_all_upper", t.AllUpper)
	b.flag("text_all_lower", t.AllLower)
	b.flag("text_mixed_case", t.MixedCase)
	b.flag("text_postal_city", t.PostalCity)
	b.flag("text_street_like", t.StreetLike)
	b.flag("text_legal_form", t.LegalForm)
	b.flag("text_kw_invoice", t.Keywords.Invoice)
	b.flag("text_kw_date", t.Keywords.Date)
	b.flag("text_kw_net", t.Keywords.Net)
	b.flag("text_kw_vat", t.Keywords.Vat)
	b.flag("text_kw_gross", t.Keywords.Gross)

	counts := patterns.CountByCategory(f.RegexHits)
	for _, cat := range patterns.Categories() {
		b.add("regex_"+cat.String(), float64(min(counts[cat], 3))/3)
	}

	var maxConf float64
	for _, h := range f.RegexHits {
		maxConf = max(maxConf, h.Confidence)
	}

	b.add("regex_max_confidence", maxConf)

	return Vector{
		Values:        b.values,
		Names:         b.names,
		SchemaVersion: SchemaVersion,
	}
}

// gapFeature expresses a vertical gap in line heights, squashed to [0, 1).
func gapFeature(gap, lineHeight float64) float64 {
	if gap <= 0 || lineHeight <= 0 {
		return 0
	}

	return 1 - math.Exp(-gap/lineHeight)
}
