// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package features turns positioned text blocks into feature records and
// fixed-length numeric vectors for the classifier.
//
// Every feature group is an independent value struct; ExtractedFeature only
// composes them. Extraction never fails: empty or malformed input yields
// neutral values (false flags, zero ratios).
package features

import (
	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/patterns"
)

// Region is the vertical band of the page a block lies in.
type Region int8

const (
	RegionHeader Region = iota
	RegionBody
	RegionFooter
)

func (r Region) String() string {
	switch r {
	case RegionHeader:
		return "header"
	case RegionBody:
		return "body"
	case RegionFooter:
		return "footer"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Region) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Alignment is the horizontal placement of a block on the page.
type Alignment int8

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

func (a Alignment) String() string {
	switch a {
	case AlignLeft:
		return "left"
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Alignment) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Position holds absolute and page relative coordinates.
type Position struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	RelX       float64 `json:"rel_x"`
	RelY       float64 `json:"rel_y"`
	RelWidth   float64 `json:"rel_width"`
	RelHeight  float64 `json:"rel_height"`
	CenterX    float64 `json:"center_x"`
	CenterY    float64 `json:"center_y"`
	RelCenterX float64 `json:"rel_center_x"`
	RelCenterY float64 `json:"rel_center_y"`
	Page       int     `json:"page"`
	LineIndex  int     `json:"line_index"`
	// PageRatio is the ordinal of the block among its siblings scaled to
	// [0, 1].
	PageRatio float64 `json:"page_ratio"`
}

// BoundingBox describes the box of the block.
type BoundingBox struct {
	Left        float64 `json:"left"`
	Top         float64 `json:"top"`
	Right       float64 `json:"right"`
	Bottom      float64 `json:"bottom"`
	Area        float64 `json:"area"`
	RelArea     float64 `json:"rel_area"`
	AspectRatio float64 `json:"aspect_ratio"`
	Valid       bool    `json:"valid"`
}

// Layout places the block on the page.
type Layout struct {
	Region          Region    `json:"region"`
	Alignment       Alignment `json:"alignment"`
	Indentation     float64   `json:"indentation"`
	AlignedWithPrev bool      `json:"aligned_with_prev"`
	AlignedWithNext bool      `json:"aligned_with_next"`
}

// Keywords flags invoice vocabulary found in a text.
type Keywords struct {
	Invoice bool `json:"invoice"`
	Date    bool `json:"date"`
	Net     bool `json:"net"`
	Vat     bool `json:"vat"`
	Gross   bool `json:"gross"`
}

// Context describes the neighbors of the block in reading order. Gaps are
// vertical distances in page units, zero when the neighbor is missing.
type Context struct {
	PrevText     string   `json:"prev_text"`
	NextText     string   `json:"next_text"`
	PrevWord     string   `json:"prev_word"`
	NextWord     string   `json:"next_word"`
	HasPrev      bool     `json:"has_prev"`
	HasNext      bool     `json:"has_next"`
	GapPrev      float64  `json:"gap_prev"`
	GapNext      float64  `json:"gap_next"`
	IsFirst      bool     `json:"is_first"`
	IsLast       bool     `json:"is_last"`
	Isolated     bool     `json:"isolated"`
	PrevKeywords Keywords `json:"prev_keywords"`
}

// Statistical holds character class counts and ratios over code points.
type Statistical struct {
	CharCount     int     `json:"char_count"`
	WordCount     int     `json:"word_count"`
	DigitCount    int     `json:"digit_count"`
	LetterCount   int     `json:"letter_count"`
	SpaceCount    int     `json:"space_count"`
	SpecialCount  int     `json:"special_count"`
	UpperCount    int     `json:"upper_count"`
	LowerCount    int     `json:"lower_count"`
	DigitRatio    float64 `json:"digit_ratio"`
	LetterRatio   float64 `json:"letter_ratio"`
	SpecialRatio  float64 `json:"special_ratio"`
	UpperRatio    float64 `json:"upper_ratio"`
	LowerRatio    float64 `json:"lower_ratio"`
	AvgWordLength float64 `json:"avg_word_length"`
}

// TextFeatures holds normalized forms of the text and content flags.
type TextFeatures struct {
	Normalized string `json:"normalized"`
	Lower      string `json:"lower"`
	Upper      string `json:"upper"`
	Folded     string `json:"folded"`

	ContainsNumber        bool `json:"contains_number"`
	ContainsCurrency      bool `json:"contains_currency"`
	ContainsDate          bool `json:"contains_date"`
	ContainsEmail         bool `json:"contains_email"`
	ContainsPhone         bool `json:"contains_phone"`
	ContainsAmount        bool `json:"contains_amount"`
	ContainsInvoiceNumber bool `json:"contains_invoice_number"`

	StartsWithDigit  bool `json:"starts_with_digit"`
	StartsWithLetter bool `json:"starts_with_letter"`
	EndsWithPunct    bool `json:"ends_with_punct"`
	AllUpper         bool `json:"all_upper"`
	AllLower         bool `json:"all_lower"`
	MixedCase        bool `json:"mixed_case"`

	// PostalCity is set for "12345 Berlin" shaped lines.
	PostalCity bool `json:"postal_city"`
	// StreetLike is set for lines ending in a house number or naming a street.
	StreetLike bool `json:"street_like"`
	// LegalForm is set when a company legal form (GmbH, AG, ...) is present.
	LegalForm bool `json:"legal_form"`

	Keywords Keywords `json:"keywords"`
}

// ExtractedFeature is the full feature record of one block.
type ExtractedFeature struct {
	Block       document.TextBlock `json:"block"`
	Position    Position           `json:"position"`
	BoundingBox BoundingBox        `json:"bounding_box"`
	Layout      Layout             `json:"layout"`
	Context     Context            `json:"context"`
	Statistical Statistical        `json:"statistical"`
	Text        TextFeatures       `json:"text"`
	RegexHits   []patterns.Hit     `json:"regex_hits"`
	Vector      Vector             `json:"vector"`
}
