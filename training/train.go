// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package training fits classifier models from labeled samples and measures
// them: stratified splits, k-fold cross-validation, confusion matrices, F1
// variants and log-loss.
package training

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/jcodagnone/fieldex/classifier"
	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/fields"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Result is the outcome of Train. When training fails, Model is nil and the
// fields collected so far are kept.
type Result struct {
	Model *classifier.Model `json:"-"`
	// Metrics are measured on the test partition, or on the validation or
	// training partition when the former are empty. EvaluatedOn says which.
	Metrics         *Metrics `json:"metrics,omitempty"`
	EvaluatedOn     string   `json:"evaluated_on,omitempty"`
	Validation      *Metrics `json:"validation,omitempty"`
	TrainSize       int      `json:"train_size"`
	ValidationSize  int      `json:"validation_size"`
	TestSize        int      `json:"test_size"`
	EpochsCompleted int      `json:"epochs_completed"`
	Warnings        []string `json:"warnings,omitempty"`
}

func (o Options) version() string {
	if o.ModelVersion != "" {
		return o.ModelVersion
	}

	return "fx-" + time.Now().UTC().Format("20060102T150405")
}

func newBar(n int, desc string) *progressbar.ProgressBar {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}

	return progressbar.NewOptions(n,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func labelsOf(xs []Example) []fields.Label {
	ret := make([]fields.Label, len(xs))
	for i, x := range xs {
		ret[i] = x.Label
	}

	return ret
}

// Train splits the set, fits a model on the training partition and measures
// it on the held-out partitions. Options are validated and the sample count
// checked before any work starts. Cancellation is honoured between epochs
// and never yields a model.
func Train(ctx context.Context, set *Set, ex *features.Extractor, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if err := opts.checkSize(set.Len()); err != nil {
		return nil, err
	}

	examples := Featurize(set.Samples, ex)
	part, warnings := Split(labelsOf(examples), opts)

	res := &Result{
		TrainSize:      len(part.Train),
		ValidationSize: len(part.Validation),
		TestSize:       len(part.Test),
		Warnings:       warnings,
	}

	train := pick(examples, part.Train)
	classes := set.Labels()

	var inTrain [fields.Count]bool
	for _, x := range train {
		inTrain[x.Label] = true
	}

	for _, l := range classes {
		if !inTrain[l] {
			res.Warnings = append(res.Warnings, fmt.Sprintf("label %s has no samples in the training partition", l))
		}
	}

	version := opts.version()
	log.Printf("Training %s on %d samples (%d validation, %d test), %d labels",
		version, len(train), len(part.Validation), len(part.Test), len(classes))

	model, epochs, err := fit(ctx, train, classes, opts, "Training "+version)
	res.EpochsCompleted = epochs

	if err != nil {
		return res, fmt.Errorf("training %s: %w", version, err)
	}

	model.Version = version
	model.Samples = len(train)

	if len(part.Validation) > 0 {
		ev, err := evaluateExamples(ctx, model, pick(examples, part.Validation))
		if err != nil {
			return res, fmt.Errorf("validating %s: %w", version, err)
		}

		res.Validation = &ev.Metrics
	}

	held, on := part.Test, "test"

	switch {
	case len(held) > 0:
	case len(part.Validation) > 0:
		held, on = part.Validation, "validation"
	default:
		held, on = part.Train, "train"
	}

	ev, err := evaluateExamples(ctx, model, pick(examples, held))
	if err != nil {
		return res, fmt.Errorf("testing %s: %w", version, err)
	}

	res.Model = model
	res.Metrics = &ev.Metrics
	res.EvaluatedOn = on

	log.Printf("Trained %s - accuracy %.4f, macro F1 %.4f, log-loss %.4f on %s",
		version, ev.Metrics.Accuracy, ev.Metrics.MacroF1, ev.Metrics.LogLoss, on)

	return res, nil
}

// fit runs full-batch gradient descent of a softmax regression with L2
// regularization over standardized features. classes must be ascending.
func fit(ctx context.Context, xs []Example, classes []fields.Label, opts Options, desc string) (*classifier.Model, int, error) {
	n, d, k := len(xs), features.VectorLength, len(classes)
	if n == 0 || k == 0 {
		return nil, 0, &InsufficientDataError{Required: 1, Actual: n}
	}

	var classIdx [fields.Count]int
	for i := range classIdx {
		classIdx[i] = -1
	}

	for c, l := range classes {
		classIdx[l] = c
	}

	mean, scale := standardization(xs, d)

	z := make([][]float64, n)
	for i, x := range xs {
		z[i] = make([]float64, d)
		for j, v := range x.Values {
			z[i][j] = (v - mean[j]) / scale[j]
		}
	}

	w := make([][]float64, k)
	gw := make([][]float64, k)

	for c := range w {
		w[c] = make([]float64, d)
		gw[c] = make([]float64, d)
	}

	// start from the log prior so that unseen classes stay unlikely
	b := make([]float64, k)
	gb := make([]float64, k)

	var counts [fields.Count]int
	for _, x := range xs {
		counts[x.Label]++
	}

	for c, l := range classes {
		b[c] = math.Log(float64(counts[l]+1) / float64(n+k))
	}

	bar := newBar(opts.Epochs, desc)
	logits := make([]float64, k)
	inv := 1 / float64(n)

	for epoch := range opts.Epochs {
		if err := ctx.Err(); err != nil {
			return nil, epoch, err
		}

		for c := range k {
			gb[c] = 0
			clear(gw[c])
		}

		for i, zi := range z {
			for c := range k {
				s := b[c]
				for j, v := range zi {
					s += w[c][j] * v
				}

				logits[c] = s
			}

			p := classifier.Softmax(logits)
			y := classIdx[xs[i].Label]

			for c := range k {
				g := p[c]
				if c == y {
					g--
				}

				gb[c] += g

				row := gw[c]
				for j, v := range zi {
					row[j] += g * v
				}
			}
		}

		for c := range k {
			for j := range d {
				w[c][j] -= opts.LearningRate * (gw[c][j]*inv + opts.L2*w[c][j])
			}

			b[c] -= opts.LearningRate * gb[c] * inv
		}

		if bar != nil {
			_ = bar.Add(1)
		} else if (epoch+1)%100 == 0 {
			log.Printf("%s - epoch %d/%d", desc, epoch+1, opts.Epochs)
		}
	}

	return &classifier.Model{
		SchemaVersion: features.SchemaVersion,
		Features:      features.Schema(),
		Labels:        classes,
		Weights:       w,
		Bias:          b,
		Mean:          mean,
		Scale:         scale,
		TrainedAt:     time.Now().UTC(),
	}, opts.Epochs, nil
}

// standardization returns the per feature mean and standard deviation;
// constant features get a scale of 1.
func standardization(xs []Example, d int) ([]float64, []float64) {
	mean := make([]float64, d)
	scale := make([]float64, d)

	for _, x := range xs {
		for j, v := range x.Values {
			mean[j] += v
		}
	}

	n := float64(len(xs))
	for j := range mean {
		mean[j] /= n
	}

	for _, x := range xs {
		for j, v := range x.Values {
			diff := v - mean[j]
			scale[j] += diff * diff
		}
	}

	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] < 1e-9 {
			scale[j] = 1
		}
	}

	return mean, scale
}
