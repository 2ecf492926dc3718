// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package training

import (
	"math"

	"github.com/jcodagnone/fieldex/fields"
)

// probFloor keeps a confidently wrong prediction from an infinite loss.
const probFloor = 1e-15

// ClassMetrics are the one-vs-rest metrics of a class.
type ClassMetrics struct {
	Label     fields.Label `json:"label"`
	Precision float64      `json:"precision"`
	Recall    float64      `json:"recall"`
	F1        float64      `json:"f1"`
	Support   int          `json:"support"`
}

// Metrics is the snapshot of a training or evaluation run.
type Metrics struct {
	ModelVersion string           `json:"model_version"`
	Samples      int              `json:"samples"`
	Accuracy     float64          `json:"accuracy"`
	MicroF1      float64          `json:"micro_f1"`
	MacroF1      float64          `json:"macro_f1"`
	WeightedF1   float64          `json:"weighted_f1"`
	LogLoss      float64          `json:"log_loss"`
	PerClass     []ClassMetrics   `json:"per_class"`
	Confusion    *ConfusionMatrix `json:"confusion"`
}

// Class returns the metrics of l.
func (m *Metrics) Class(l fields.Label) (ClassMetrics, bool) {
	for _, c := range m.PerClass {
		if c.Label == l {
			return c, true
		}
	}

	return ClassMetrics{}, false
}

// ComputeMetrics derives the metrics of cm. trueProbs holds, per evaluated
// sample, the probability assigned to its actual label; it may be empty when
// probabilities are not available, in which case LogLoss is 0.
//
// Macro and weighted F1 average over the classes that have support or
// predictions; classes only known to the matrix are listed with zeros.
func ComputeMetrics(cm *ConfusionMatrix, trueProbs []float64) Metrics {
	m := Metrics{
		Samples:   cm.Total(),
		Accuracy:  ratio(cm.Correct(), cm.Total()),
		Confusion: cm,
		LogLoss:   LogLoss(trueProbs),
	}

	var (
		tp, fp, fn    int
		macroSum      float64
		macroN        int
		weightedSum   float64
		weightedTotal int
	)

	for _, l := range cm.Classes() {
		support := cm.Support(l)
		predicted := cm.Predicted(l)
		ctp := cm.Count(l, l)

		c := ClassMetrics{
			Label:     l,
			Precision: ratio(ctp, predicted),
			Recall:    ratio(ctp, support),
			Support:   support,
		}
		c.F1 = harmonic(c.Precision, c.Recall)
		m.PerClass = append(m.PerClass, c)

		tp += ctp
		fp += predicted - ctp
		fn += support - ctp

		if support > 0 || predicted > 0 {
			macroSum += c.F1
			macroN++
		}

		weightedSum += c.F1 * float64(support)
		weightedTotal += support
	}

	m.MicroF1 = harmonic(ratio(tp, tp+fp), ratio(tp, tp+fn))

	if macroN > 0 {
		m.MacroF1 = macroSum / float64(macroN)
	}

	if weightedTotal > 0 {
		m.WeightedF1 = weightedSum / float64(weightedTotal)
	}

	return m
}

// LogLoss is the mean negative log probability of the actual labels.
func LogLoss(trueProbs []float64) float64 {
	if len(trueProbs) == 0 {
		return 0
	}

	var sum float64
	for _, p := range trueProbs {
		if math.IsNaN(p) {
			p = 0
		}

		sum -= math.Log(min(max(p, probFloor), 1))
	}

	return sum / float64(len(trueProbs))
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}

	return float64(a) / float64(b)
}

func harmonic(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}

	return 2 * p * r / (p + r)
}

// Summary holds the scalar metrics of a run, used to average folds.
type Summary struct {
	Accuracy   float64 `json:"accuracy"`
	MicroF1    float64 `json:"micro_f1"`
	MacroF1    float64 `json:"macro_f1"`
	WeightedF1 float64 `json:"weighted_f1"`
	LogLoss    float64 `json:"log_loss"`
}

// Summary returns the scalar metrics.
func (m *Metrics) Summary() Summary {
	return Summary{
		Accuracy:   m.Accuracy,
		MicroF1:    m.MicroF1,
		MacroF1:    m.MacroF1,
		WeightedF1: m.WeightedF1,
		LogLoss:    m.LogLoss,
	}
}

// Average returns the mean of the summaries.
func Average(s []Summary) Summary {
	var ret Summary
	if len(s) == 0 {
		return ret
	}

	for _, x := range s {
		ret.Accuracy += x.Accuracy
		ret.MicroF1 += x.MicroF1
		ret.MacroF1 += x.MacroF1
		ret.WeightedF1 += x.WeightedF1
		ret.LogLoss += x.LogLoss
	}

	n := float64(len(s))
	ret.Accuracy /= n
	ret.MicroF1 /= n
	ret.MacroF1 /= n
	ret.WeightedF1 /= n
	ret.LogLoss /= n

	return ret
}
