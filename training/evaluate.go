// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package training

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jcodagnone/fieldex/classifier"
	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/fields"
)

// ctxCheckEvery is how many predictions run between cancellation checks.
const ctxCheckEvery = 512

// Misclassification is one sample the model got wrong.
type Misclassification struct {
	Actual     fields.Label `json:"actual"`
	Predicted  fields.Label `json:"predicted"`
	Confidence float64      `json:"confidence"`
	Text       string       `json:"text"`
	DocumentID string       `json:"document_id"`
}

// Evaluation is the snapshot of a model measured against a labeled set.
type Evaluation struct {
	ModelVersion       string              `json:"model_version"`
	SetName            string              `json:"set_name"`
	EvaluatedAt        time.Time           `json:"evaluated_at"`
	Metrics            Metrics             `json:"metrics"`
	Misclassifications []Misclassification `json:"misclassifications"`
}

// Evaluate classifies every sample of set with m, without retraining. On
// cancellation the evaluation collected so far is returned with the error.
func Evaluate(ctx context.Context, m *classifier.Model, set *Set, ex *features.Extractor) (*Evaluation, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := m.CheckSchema(); err != nil {
		return nil, err
	}

	ev, err := evaluateExamples(ctx, m, Featurize(set.Samples, ex))
	ev.SetName = set.Name

	if err != nil {
		return ev, fmt.Errorf("evaluating %s on %s: %w", m.Version, set.Name, err)
	}

	log.Printf("Evaluated %s on %s - %d samples, accuracy %.4f, %d misclassified",
		m.Version, set.Name, ev.Metrics.Samples, ev.Metrics.Accuracy, len(ev.Misclassifications))

	return ev, nil
}

func evaluateExamples(ctx context.Context, m *classifier.Model, xs []Example) (*Evaluation, error) {
	cm := NewConfusionMatrix(m.Labels...)
	probs := make([]float64, 0, len(xs))

	ev := &Evaluation{ModelVersion: m.Version, EvaluatedAt: time.Now().UTC()}

	finish := func() {
		ev.Metrics = ComputeMetrics(cm, probs)
		ev.Metrics.ModelVersion = m.Version
	}

	for i, x := range xs {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				finish()

				return ev, err
			}
		}

		p, err := m.Predict(features.Vector{Values: x.Values, SchemaVersion: features.SchemaVersion})
		if err != nil {
			finish()

			return ev, err
		}

		cm.Add(x.Label, p.Label)

		if x.Label.Valid() {
			probs = append(probs, p.Probabilities[x.Label])
		}

		if p.Label != x.Label {
			ev.Misclassifications = append(ev.Misclassifications, Misclassification{
				Actual:     x.Label,
				Predicted:  p.Label,
				Confidence: p.Confidence,
				Text:       x.Text,
				DocumentID: x.DocumentID,
			})
		}
	}

	finish()

	return ev, nil
}
