// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package training

import (
	"context"
	"fmt"
	"log"

	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/fields"
)

// FoldResult holds the metrics of one fold.
type FoldResult struct {
	Fold      int     `json:"fold"`
	TrainSize int     `json:"train_size"`
	TestSize  int     `json:"test_size"`
	Metrics   Metrics `json:"metrics"`
}

// CVResult holds per fold metrics, their average and the confusion matrix
// pooled over every fold.
type CVResult struct {
	Folds    []FoldResult     `json:"folds"`
	Mean     Summary          `json:"mean"`
	Pooled   *ConfusionMatrix `json:"pooled"`
	Warnings []string         `json:"warnings,omitempty"`
}

func (r *CVResult) summarize() {
	s := make([]Summary, len(r.Folds))
	for i := range r.Folds {
		s[i] = r.Folds[i].Metrics.Summary()
	}

	r.Mean = Average(s)
}

// CrossValidate partitions the set into opts.Folds stratified disjoint folds
// and, for each, trains on the others and evaluates on it. Cancellation is
// checked before each fold and between epochs; the folds completed so far are
// returned with the error.
func CrossValidate(ctx context.Context, set *Set, ex *features.Extractor, opts Options) (*CVResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	k := opts.Folds
	if k < 2 {
		return nil, &ConfigError{Field: "folds", Message: fmt.Sprintf("cross-validation needs at least 2 folds, got %d", k)}
	}

	if err := opts.checkSize(set.Len()); err != nil {
		return nil, err
	}

	if set.Len() < k {
		return nil, &InsufficientDataError{Required: k, Actual: set.Len()}
	}

	examples := Featurize(set.Samples, ex)
	labels := labelsOf(examples)
	folds := Folds(labels, k, opts.Seed)
	classes := set.Labels()
	version := opts.version()

	res := &CVResult{Pooled: NewConfusionMatrix(classes...)}

	for i, testIdx := range folds {
		if err := ctx.Err(); err != nil {
			res.summarize()

			return res, fmt.Errorf("cross-validation stopped before fold %d: %w", i+1, err)
		}

		var trainIdx []int
		for j, f := range folds {
			if j != i {
				trainIdx = append(trainIdx, f...)
			}
		}

		var support [fields.Count]int
		for _, idx := range testIdx {
			support[labels[idx]]++
		}

		for _, l := range classes {
			if support[l] == 0 {
				res.Warnings = append(res.Warnings, fmt.Sprintf("fold %d: label %s has no samples in the held-out fold", i+1, l))
			}
		}

		desc := fmt.Sprintf("Fold %d/%d", i+1, k)

		m, _, err := fit(ctx, pick(examples, trainIdx), classes, opts, desc)
		if err != nil {
			res.summarize()

			return res, fmt.Errorf("cross-validation fold %d: %w", i+1, err)
		}

		m.Version = fmt.Sprintf("%s-fold%d", version, i+1)

		ev, err := evaluateExamples(ctx, m, pick(examples, testIdx))
		if err != nil {
			res.summarize()

			return res, fmt.Errorf("cross-validation fold %d: %w", i+1, err)
		}

		res.Pooled.Merge(ev.Metrics.Confusion)
		res.Folds = append(res.Folds, FoldResult{
			Fold:      i + 1,
			TrainSize: len(trainIdx),
			TestSize:  len(testIdx),
			Metrics:   ev.Metrics,
		})

		log.Printf("%s - accuracy %.4f, macro F1 %.4f", desc, ev.Metrics.Accuracy, ev.Metrics.MacroF1)
	}

	res.summarize()

	return res, nil
}
