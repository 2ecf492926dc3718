// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package features

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/patterns"
	"github.com/jcodagnone/fieldex/spatial"
	"github.com/jcodagnone/fieldex/utils/textutils"
)

// Extractor computes feature records. It holds no mutable state and is safe
// for concurrent use.
type Extractor struct {
	cfg Config
}

// NewExtractor validates cfg and returns an extractor.
func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Extractor{cfg: cfg}, nil
}

// Config returns the layout parameters in use.
func (e *Extractor) Config() Config { return e.cfg }

// Extract computes the features of b given the ordered blocks of its page.
// When b is not among siblings it is treated as a block without neighbors.
func (e *Extractor) Extract(b document.TextBlock, siblings []document.TextBlock) ExtractedFeature {
	for i := range siblings {
		if siblings[i] == b {
			return e.ExtractAt(siblings, i)
		}
	}

	return e.extract(b, nil, -1, NewPageStats([]document.TextBlock{b}))
}

// ExtractAt computes the features of siblings[i].
func (e *Extractor) ExtractAt(siblings []document.TextBlock, i int) ExtractedFeature {
	return e.extract(siblings[i], siblings, i, NewPageStats(siblings))
}

// ExtractWith computes the features of siblings[i] with precomputed page
// statistics. It only reads its arguments and may be called concurrently.
func (e *Extractor) ExtractWith(siblings []document.TextBlock, i int, stats PageStats) ExtractedFeature {
	return e.extract(siblings[i], siblings, i, stats)
}

// ExtractPage computes the features of every block of a page, sharing the
// page statistics.
func (e *Extractor) ExtractPage(siblings []document.TextBlock) []ExtractedFeature {
	stats := NewPageStats(siblings)

	ret := make([]ExtractedFeature, len(siblings))
	for i := range siblings {
		ret[i] = e.extract(siblings[i], siblings, i, stats)
	}

	return ret
}

// PageStats are the read-only page aggregates needed by every block.
type PageStats struct {
	Width        float64
	Height       float64
	MinX         float64
	MedianHeight float64
}

// NewPageStats derives page dimensions, falling back to the extent of the
// blocks when the parser did not report them.
func NewPageStats(blocks []document.TextBlock) PageStats {
	var (
		s       PageStats
		heights []float64
		extentX float64
		extentY float64
	)

	s.MinX = math.Inf(1)

	for _, b := range blocks {
		s.Width = max(s.Width, b.PageWidth)
		s.Height = max(s.Height, b.PageHeight)

		if !b.Box.IsValid() {
			continue
		}

		heights = append(heights, b.Box.Height)
		extentX = max(extentX, b.Box.Right())
		extentY = max(extentY, b.Box.Bottom())
		s.MinX = min(s.MinX, b.Box.X)
	}

	if s.Width <= 0 {
		s.Width = extentX
	}

	if s.Height <= 0 {
		s.Height = extentY
	}

	if math.IsInf(s.MinX, 1) {
		s.MinX = 0
	}

	s.MedianHeight = spatial.Median(heights)

	return s
}

func (e *Extractor) extract(b document.TextBlock, siblings []document.TextBlock, i int, stats PageStats) ExtractedFeature {
	hits := patterns.Match(b.Text)

	f := ExtractedFeature{
		Block:       b,
		Position:    position(b, len(siblings), i, stats),
		BoundingBox: boundingBox(b.Box, stats),
		Statistical: statistical(b.Text),
		RegexHits:   hits,
	}

	f.Text = textFeatures(b.Text, hits, f.Statistical)
	f.Layout = e.layout(b, siblings, i, stats)
	f.Context = e.context(b, siblings, i, stats)
	f.Vector = f.vectorize()
	f.Vector.Valid = f.Vector.IsValid()

	return f
}

func position(b document.TextBlock, n, i int, stats PageStats) Position {
	r := b.Box

	p := Position{
		X:          r.X,
		Y:          r.Y,
		Width:      r.Width,
		Height:     r.Height,
		RelX:       clamp01(spatial.Ratio(r.X, stats.Width)),
		RelY:       clamp01(spatial.Ratio(r.Y, stats.Height)),
		RelWidth:   clamp01(spatial.Ratio(r.Width, stats.Width)),
		RelHeight:  clamp01(spatial.Ratio(r.Height, stats.Height)),
		CenterX:    r.CenterX(),
		CenterY:    r.CenterY(),
		RelCenterX: clamp01(spatial.Ratio(r.CenterX(), stats.Width)),
		RelCenterY: clamp01(spatial.Ratio(r.CenterY(), stats.Height)),
		Page:       b.Page,
		LineIndex:  b.LineIndex,
	}

	if n > 1 && i >= 0 {
		p.PageRatio = float64(i) / float64(n-1)
	}

	return p
}

func boundingBox(r spatial.Rect, stats PageStats) BoundingBox {
	return BoundingBox{
		Left:        r.Left(),
		Top:         r.Top(),
		Right:       r.Right(),
		Bottom:      r.Bottom(),
		Area:        r.Area(),
		RelArea:     clamp01(spatial.Ratio(r.Area(), stats.Width*stats.Height)),
		AspectRatio: r.AspectRatio(),
		Valid:       r.IsValid(),
	}
}

func (e *Extractor) layout(b document.TextBlock, siblings []document.TextBlock, i int, stats PageStats) Layout {
	l := Layout{Region: RegionBody, Alignment: AlignLeft}

	if !b.Box.IsValid() {
		return l
	}

	if stats.Height > 0 {
		switch relY := b.Box.Y / stats.Height; {
		case relY < e.cfg.HeaderThreshold:
			l.Region = RegionHeader
		case relY > e.cfg.FooterThreshold:
			l.Region = RegionFooter
		}
	}

	if stats.Width > 0 {
		switch cx := b.Box.CenterX() / stats.Width; {
		case cx > 0.66:
			l.Alignment = AlignRight
		case cx >= 0.33:
			l.Alignment = AlignCenter
		}

		l.Indentation = clamp01((b.Box.X - stats.MinX) / stats.Width)
	}

	if i > 0 {
		l.AlignedWithPrev = e.aligned(b.Box, siblings[i-1].Box)
	}

	if i >= 0 && i+1 < len(siblings) {
		l.AlignedWithNext = e.aligned(b.Box, siblings[i+1].Box)
	}

	return l
}

func (e *Extractor) aligned(a, b spatial.Rect) bool {
	if !a.IsValid() || !b.IsValid() {
		return false
	}

	tol := e.cfg.AlignmentTolerance

	return math.Abs(a.Left()-b.Left()) <= tol ||
		math.Abs(a.CenterX()-b.CenterX()) <= tol ||
		math.Abs(a.Right()-b.Right()) <= tol
}

func (e *Extractor) context(b document.TextBlock, siblings []document.TextBlock, i int, stats PageStats) Context {
	c := Context{
		IsFirst: i <= 0,
		IsLast:  i < 0 || i == len(siblings)-1,
	}

	gapPrev, gapNext := math.Inf(1), math.Inf(1)

	if i > 0 {
		prev := siblings[i-1]
		c.HasPrev = true
		c.PrevText = normalize(prev.Text)
		c.PrevWord = lastWord(c.PrevText)
		c.PrevKeywords = keywords(textutils.LowerASCIIFolding(prev.Text))

		if b.Box.IsValid() && prev.Box.IsValid() {
			gapPrev = max(0, b.Box.Top()-prev.Box.Bottom())
			c.GapPrev = gapPrev
		}
	}

	if i >= 0 && i+1 < len(siblings) {
		next := siblings[i+1]
		c.HasNext = true
		c.NextText = normalize(next.Text)
		c.NextWord = firstWord(c.NextText)

		if b.Box.IsValid() && next.Box.IsValid() {
			gapNext = max(0, next.Box.Top()-b.Box.Bottom())
			c.GapNext = gapNext
		}
	}

	// a missing neighbor counts as an infinite gap
	if limit := e.cfg.IsolationFactor * stats.MedianHeight; limit > 0 && b.Box.IsValid() {
		c.Isolated = gapPrev > limit && gapNext > limit
	}

	return c
}

func statistical(text string) Statistical {
	var s Statistical

	for _, r := range text {
		s.CharCount++

		switch {
		case unicode.IsDigit(r):
			s.DigitCount++
		case unicode.IsLetter(r):
			s.LetterCount++

			if unicode.IsUpper(r) {
				s.UpperCount++
			} else if unicode.IsLower(r) {
				s.LowerCount++
			}
		case unicode.IsSpace(r):
			s.SpaceCount++
		default:
			s.SpecialCount++
		}
	}

	words := strings.Fields(text)
	s.WordCount = len(words)

	var wordChars int
	for _, w := range words {
		wordChars += utf8.RuneCountInString(w)
	}

	n := float64(s.CharCount)
	s.DigitRatio = spatial.Ratio(float64(s.DigitCount), n)
	s.LetterRatio = spatial.Ratio(float64(s.LetterCount), n)
	s.SpecialRatio = spatial.Ratio(float64(s.SpecialCount), n)
	s.UpperRatio = spatial.Ratio(float64(s.UpperCount), n)
	s.LowerRatio = spatial.Ratio(float64(s.LowerCount), n)
	s.AvgWordLength = spatial.Ratio(float64(wordChars), float64(s.WordCount))

	return s
}

var (
	rePostalCity = regexp.MustCompile(`^(?:D-)?\d{5}\s+\p{L}`)
	reStreet     = regexp.MustCompile(`\p{L}[\p{L}.\-]*\s+\d{1,4}\s?[a-zA-Z]?$`)
	reLegalForm  = regexp.MustCompile(`(?i)\b(?:gmbh|ag|kg|ohg|ug|e\.\s?k|gbr|ltd|inc|llc|se)\b`)
)

var streetWords = []string{"strasse", "str", "weg", "allee", "platz", "gasse", "ring", "damm"}

func textFeatures(text string, hits []patterns.Hit, s Statistical) TextFeatures {
	norm := normalize(text)
	folded := textutils.LowerASCIIFolding(norm)
	counts := patterns.CountByCategory(hits)

	t := TextFeatures{
		Normalized: norm,
		Lower:      strings.ToLower(norm),
		Upper:      strings.ToUpper(norm),
		Folded:     folded,

		ContainsNumber:        s.DigitCount > 0,
		ContainsCurrency:      counts[patterns.CategoryCurrency] > 0,
		ContainsDate:          counts[patterns.CategoryDate] > 0,
		ContainsEmail:         counts[patterns.CategoryEmail] > 0,
		ContainsPhone:         counts[patterns.CategoryPhone] > 0,
		ContainsAmount:        counts[patterns.CategoryAmount] > 0,
		ContainsInvoiceNumber: counts[patterns.CategoryInvoiceNumber] > 0,

		AllUpper:  s.UpperCount > 0 && s.LowerCount == 0,
		AllLower:  s.LowerCount > 0 && s.UpperCount == 0,
		MixedCase: s.UpperCount > 0 && s.LowerCount > 0,

		PostalCity: rePostalCity.MatchString(norm),
		LegalForm:  reLegalForm.MatchString(norm),
		StreetLike: reStreet.MatchString(norm) || (textutils.ContainsWord(folded, streetWords...) && s.DigitCount > 0),

		Keywords: keywords(folded),
	}

	if first, _ := utf8.DecodeRuneInString(norm); norm != "" {
		t.StartsWithDigit = unicode.IsDigit(first)
		t.StartsWithLetter = unicode.IsLetter(first)
	}

	if last, _ := utf8.DecodeLastRuneInString(norm); norm != "" {
		t.EndsWithPunct = unicode.IsPunct(last)
	}

	return t
}

func keywords(folded string) Keywords {
	return Keywords{
		Invoice: textutils.ContainsWord(folded, "rechnung", "invoice", "faktura"),
		Date:    textutils.ContainsWord(folded, "datum", "date", "rechnungsdatum"),
		Net:     textutils.ContainsWord(folded, "netto", "net", "zwischensumme", "subtotal"),
		Vat:     textutils.ContainsWord(folded, "mwst", "ust", "vat", "umsatzsteuer", "mehrwertsteuer"),
		Gross:   textutils.ContainsWord(folded, "brutto", "gesamt", "total", "summe", "endbetrag"),
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}

	return ""
}

func lastWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[len(f)-1]
	}

	return ""
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
