// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"slices"

	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/fields"
)

// TopK is the number of ranked alternatives of a prediction.
const TopK = 3

// Score is a ranked alternative. Padded entries do not come from the model:
// they fill the ranking when the model knows fewer than TopK labels.
type Score struct {
	Label  fields.Label `json:"label"`
	Score  float64      `json:"score"`
	Padded bool         `json:"padded,omitempty"`
}

// Prediction is the classifier output for one feature vector.
type Prediction struct {
	Label      fields.Label `json:"label"`
	Confidence float64      `json:"confidence"`
	// Probabilities is indexed by fields.Label; labels the model does not
	// know have probability 0.
	Probabilities [fields.Count]float64 `json:"probabilities"`
	Top           [TopK]Score           `json:"top"`
	ModelVersion  string                `json:"model_version"`
}

// Predict classifies vec. The result only depends on the model and vec.
func (m *Model) Predict(vec features.Vector) (Prediction, error) {
	if vec.SchemaVersion != m.SchemaVersion || len(vec.Values) != len(m.Features) {
		return Prediction{}, newError(ErrorTypeSchemaMismatch,
			"vector has schema %q with %d values, model %s expects %q with %d",
			vec.SchemaVersion, len(vec.Values), m.Version, m.SchemaVersion, len(m.Features))
	}

	probs := m.Probabilities(vec.Values)

	p := Prediction{ModelVersion: m.Version}

	// strict comparison keeps the lowest class index on ties
	best := 0
	for c, prob := range probs {
		p.Probabilities[m.Labels[c]] = prob
		if prob > probs[best] {
			best = c
		}
	}

	p.Label = m.Labels[best]
	p.Confidence = probs[best]
	p.Top = rank(m.Labels, probs)

	return p, nil
}

// rank orders the classes by descending score, lowest label first on ties,
// and pads with the lowest labels outside the model.
func rank(labels []fields.Label, probs []float64) [TopK]Score {
	scores := make([]Score, len(labels))
	for c, l := range labels {
		scores[c] = Score{Label: l, Score: probs[c]}
	}

	slices.SortStableFunc(scores, func(a, b Score) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return int(a.Label) - int(b.Label)
		}
	})

	var ret [TopK]Score

	n := copy(ret[:], scores)

	for _, l := range fields.All() {
		if n == TopK {
			break
		}

		if !slices.Contains(labels, l) {
			ret[n] = Score{Label: l, Padded: true}
			n++
		}
	}

	return ret
}
