// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package training

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"slices"

	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/spatial"
)

// Sample is one labeled block.
type Sample struct {
	Text       string       `json:"text"`
	Label      fields.Label `json:"label"`
	Page       int          `json:"page"`
	LineIndex  int          `json:"line_index"`
	Position   int          `json:"position"`
	Box        spatial.Rect `json:"bbox"`
	PageWidth  float64      `json:"page_width"`
	PageHeight float64      `json:"page_height"`
	DocumentID string       `json:"document_id"`
	// Overrides replace named features of the extracted vector.
	Overrides map[string]float64 `json:"overrides,omitempty"`
}

// Block returns the text block the sample was taken from.
func (s Sample) Block() document.TextBlock {
	return document.TextBlock{
		Text:       s.Text,
		Page:       s.Page,
		LineIndex:  s.LineIndex,
		Position:   s.Position,
		Box:        s.Box,
		PageWidth:  s.PageWidth,
		PageHeight: s.PageHeight,
	}
}

// FromLabeledBlock builds a sample from a reviewed block.
func FromLabeledBlock(docID string, b document.LabeledBlock) Sample {
	return Sample{
		Text:       b.Block.Text,
		Label:      b.Actual,
		Page:       b.Block.Page,
		LineIndex:  b.Block.LineIndex,
		Position:   b.Block.Position,
		Box:        b.Block.Box,
		PageWidth:  b.Block.PageWidth,
		PageHeight: b.Block.PageHeight,
		DocumentID: docID,
	}
}

// Set is a named, ordered collection of samples. Duplicates are kept.
type Set struct {
	Name    string   `json:"name"`
	Samples []Sample `json:"samples"`
}

// Len returns the number of samples.
func (s *Set) Len() int { return len(s.Samples) }

// LabelCounts counts samples per label.
func (s *Set) LabelCounts() [fields.Count]int {
	var ret [fields.Count]int

	for _, smp := range s.Samples {
		if smp.Label.Valid() {
			ret[smp.Label]++
		}
	}

	return ret
}

// Labels returns the labels present in the set, ascending.
func (s *Set) Labels() []fields.Label {
	var ret []fields.Label

	for l, n := range s.LabelCounts() {
		if n > 0 {
			ret = append(ret, fields.Label(l))
		}
	}

	return ret
}

// ReadJSONL reads one JSON encoded sample per line. Blank lines are skipped.
func ReadJSONL(r io.Reader, name string) (*Set, error) {
	set := &Set{Name: name}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for line := 1; scanner.Scan(); line++ {
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}

		var s Sample
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}

		set.Samples = append(set.Samples, s)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	return set, nil
}

// WriteJSONL writes one JSON encoded sample per line.
func (s *Set) WriteJSONL(w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	for i := range s.Samples {
		if err := enc.Encode(&s.Samples[i]); err != nil {
			return fmt.Errorf("encoding sample %d: %w", i, err)
		}
	}

	return bw.Flush()
}

// Example is a featurized sample.
type Example struct {
	Values     []float64
	Label      fields.Label
	Text       string
	DocumentID string
}

type pageKey struct {
	doc  string
	page int
}

// Featurize extracts the feature vector of every sample. Samples of the same
// document page are siblings of each other, ordered by line and position.
// The result is in sample order.
func Featurize(samples []Sample, ex *features.Extractor) []Example {
	groups := make(map[pageKey][]int)

	var keys []pageKey

	for i, s := range samples {
		k := pageKey{s.DocumentID, s.Page}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}

		groups[k] = append(groups[k], i)
	}

	ret := make([]Example, len(samples))
	unknown := make(map[string]bool)

	for _, k := range keys {
		idx := groups[k]
		slices.SortStableFunc(idx, func(a, b int) int {
			return document.Compare(samples[a].Block(), samples[b].Block())
		})

		blocks := make([]document.TextBlock, len(idx))
		for j, i := range idx {
			blocks[j] = samples[i].Block()
		}

		for j, f := range ex.ExtractPage(blocks) {
			s := samples[idx[j]]

			for name, v := range s.Overrides {
				if !f.Vector.Set(name, v) {
					unknown[name] = true
				}
			}

			ret[idx[j]] = Example{
				Values:     f.Vector.Values,
				Label:      s.Label,
				Text:       s.Text,
				DocumentID: s.DocumentID,
			}
		}
	}

	for name := range unknown {
		log.Printf("ignoring override of unknown feature %q", name)
	}

	return ret
}
