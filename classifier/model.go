// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package classifier predicts the field label of a feature vector and manages
// the lifecycle of the model used to do it.
package classifier

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"time"

	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/fields"
)

// Model is a multinomial logistic regression over standardized features.
// A model is immutable once built: the engine shares it between goroutines.
type Model struct {
	Version       string         `json:"version"`
	SchemaVersion string         `json:"schema_version"`
	Features      []string       `json:"features"`
	Labels        []fields.Label `json:"labels"`
	// Weights is indexed by [class][feature], classes in Labels order.
	Weights   [][]float64 `json:"weights"`
	Bias      []float64   `json:"bias"`
	Mean      []float64   `json:"mean"`
	Scale     []float64   `json:"scale"`
	TrainedAt time.Time   `json:"trained_at"`
	Samples   int         `json:"samples"`
}

// Validate checks the shape of the model. Labels must be strictly ascending so
// that ties resolve to the lowest class index.
func (m *Model) Validate() error {
	if m == nil {
		return newError(ErrorTypeInvalidModel, "nil model")
	}

	if m.Version == "" {
		return newError(ErrorTypeInvalidModel, "model without version")
	}

	nc, nf := len(m.Labels), len(m.Features)
	if nc == 0 {
		return newError(ErrorTypeInvalidModel, "model %s has no labels", m.Version)
	}

	for i, l := range m.Labels {
		if !l.Valid() {
			return newError(ErrorTypeInvalidModel, "model %s: invalid label %d", m.Version, l)
		}

		if i > 0 && m.Labels[i-1] >= l {
			return newError(ErrorTypeInvalidModel, "model %s: labels are not strictly ascending", m.Version)
		}
	}

	if len(m.Weights) != nc || len(m.Bias) != nc {
		return newError(ErrorTypeInvalidModel, "model %s: %d labels but %d weight rows and %d biases",
			m.Version, nc, len(m.Weights), len(m.Bias))
	}

	for i, row := range m.Weights {
		if len(row) != nf {
			return newError(ErrorTypeInvalidModel, "model %s: weight row %d has %d columns, want %d",
				m.Version, i, len(row), nf)
		}

		if !finite(row) {
			return newError(ErrorTypeInvalidModel, "model %s: weight row %d is not finite", m.Version, i)
		}
	}

	if len(m.Mean) != nf || len(m.Scale) != nf {
		return newError(ErrorTypeInvalidModel, "model %s: standardization has %d/%d entries, want %d",
			m.Version, len(m.Mean), len(m.Scale), nf)
	}

	for i, s := range m.Scale {
		if !(s > 0) || math.IsInf(s, 0) {
			return newError(ErrorTypeInvalidModel, "model %s: scale of %s is %g", m.Version, m.Features[i], s)
		}
	}

	if !finite(m.Bias) || !finite(m.Mean) {
		return newError(ErrorTypeInvalidModel, "model %s: parameters are not finite", m.Version)
	}

	return nil
}

// CheckSchema verifies that the model was trained on vectors of the schema
// the extractor currently produces.
func (m *Model) CheckSchema() error {
	if m.SchemaVersion != features.SchemaVersion {
		return newError(ErrorTypeSchemaMismatch, "model %s uses feature schema %q, extractor produces %q",
			m.Version, m.SchemaVersion, features.SchemaVersion)
	}

	if !slices.Equal(m.Features, features.Schema()) {
		return newError(ErrorTypeSchemaMismatch, "model %s has %d features, schema %s has %d",
			m.Version, len(m.Features), features.SchemaVersion, features.VectorLength)
	}

	return nil
}

// HasLabel reports whether the model can predict l.
func (m *Model) HasLabel(l fields.Label) bool {
	_, found := slices.BinarySearch(m.Labels, l)

	return found
}

// Probabilities returns the softmax output for raw feature values, in Labels
// order.
func (m *Model) Probabilities(values []float64) []float64 {
	z := make([]float64, len(values))
	for j, v := range values {
		z[j] = (v - m.Mean[j]) / m.Scale[j]
	}

	logits := make([]float64, len(m.Labels))
	for c, row := range m.Weights {
		s := m.Bias[c]
		for j, w := range row {
			s += w * z[j]
		}

		logits[c] = s
	}

	return Softmax(logits)
}

// Softmax converts logits to probabilities in a numerically stable way.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}

	hi := slices.Max(logits)

	ret := make([]float64, len(logits))

	var sum float64
	for i, l := range logits {
		ret[i] = math.Exp(l - hi)
		sum += ret[i]
	}

	for i := range ret {
		ret[i] /= sum
	}

	return ret
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)

	return n, err
}

// WriteTo writes the model as gzip compressed JSON.
func (m *Model) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	gz := gzip.NewWriter(cw)

	if err := json.NewEncoder(gz).Encode(m); err != nil {
		return cw.n, fmt.Errorf("encoding model %s: %w", m.Version, err)
	}

	if err := gz.Close(); err != nil {
		return cw.n, fmt.Errorf("compressing model %s: %w", m.Version, err)
	}

	return cw.n, nil
}

// ReadModel reads a model written by WriteTo and validates its shape. The
// feature schema is checked when the model is loaded into an Engine.
func ReadModel(r io.Reader) (*Model, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, &Error{Type: ErrorTypeInvalidModel, Message: "reading model artifact", Err: err}
	}
	defer gz.Close()

	var m Model
	if err := json.NewDecoder(gz).Decode(&m); err != nil {
		return nil, &Error{Type: ErrorTypeInvalidModel, Message: "decoding model artifact", Err: err}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}
