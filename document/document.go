// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package document holds the positioned text produced by the parsing
// collaborator and the labeled blocks derived from it.
package document

import (
	"cmp"
	"slices"

	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/spatial"
)

// TextBlock is a positioned unit of text on a page. It is the atomic unit of
// classification and is never modified after parsing.
type TextBlock struct {
	Text       string       `json:"text"`
	Page       int          `json:"page"`
	LineIndex  int          `json:"line_index"`
	Position   int          `json:"position"` // ordinal among the siblings of the page
	Box        spatial.Rect `json:"bbox"`
	PageWidth  float64      `json:"page_width"`
	PageHeight float64      `json:"page_height"`
}

// Page groups the blocks of one page in reading order.
type Page struct {
	Number int         `json:"number"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	Blocks []TextBlock `json:"blocks"`
}

// Document is one scanned invoice.
type Document struct {
	ID    string `json:"id"`
	Pages []Page `json:"pages"`
}

// Compare orders blocks by page, line index and position.
func Compare(a, b TextBlock) int {
	return cmp.Or(
		cmp.Compare(a.Page, b.Page),
		cmp.Compare(a.LineIndex, b.LineIndex),
		cmp.Compare(a.Position, b.Position),
	)
}

// SortBlocks sorts blocks in place in reading order. The sort is stable so
// blocks sharing a key keep their input order.
func SortBlocks(blocks []TextBlock) {
	slices.SortStableFunc(blocks, Compare)
}

// Normalize fills the page number and dimensions of every block from its
// page and sorts the blocks of each page. Blocks that already carry page
// dimensions keep them.
func (d *Document) Normalize() {
	for i := range d.Pages {
		p := &d.Pages[i]
		for j := range p.Blocks {
			b := &p.Blocks[j]
			b.Page = p.Number

			if b.PageWidth <= 0 {
				b.PageWidth = p.Width
			}

			if b.PageHeight <= 0 {
				b.PageHeight = p.Height
			}
		}

		SortBlocks(p.Blocks)
	}
}

// Blocks returns all blocks of the document in reading order.
func (d *Document) Blocks() []TextBlock {
	var ret []TextBlock
	for _, p := range d.Pages {
		ret = append(ret, p.Blocks...)
	}

	SortBlocks(ret)

	return ret
}

// LabeledBlock pairs a block with its ground-truth label and, once
// classified, the predicted label and confidence.
type LabeledBlock struct {
	Block      TextBlock    `json:"block"`
	Actual     fields.Label `json:"actual"`
	Predicted  fields.Label `json:"predicted"`
	Confidence float64      `json:"confidence"`
	Classified bool         `json:"classified"`
}

// SetPrediction records the classifier output for the block.
func (b *LabeledBlock) SetPrediction(label fields.Label, confidence float64) {
	b.Predicted = label
	b.Confidence = confidence
	b.Classified = true
}

// SetActualLabel records the ground truth for the block.
func (b *LabeledBlock) SetActualLabel(label fields.Label) {
	b.Actual = label
}

// IsCorrect reports whether the block was classified with its actual label.
func (b *LabeledBlock) IsCorrect() bool {
	return b.Classified && b.Actual == b.Predicted
}

// HasPrediction reports whether SetPrediction was called.
func (b *LabeledBlock) HasPrediction() bool {
	return b.Classified
}
