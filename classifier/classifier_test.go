// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/fields"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel(version string, labels []fields.Label, bias []float64) *Model {
	n := features.VectorLength

	m := &Model{
		Version:       version,
		SchemaVersion: features.SchemaVersion,
		Features:      features.Schema(),
		Labels:        labels,
		Bias:          bias,
		Mean:          make([]float64, n),
		Scale:         make([]float64, n),
		TrainedAt:     time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
	}

	for i := range m.Scale {
		m.Scale[i] = 1
	}

	for range labels {
		m.Weights = append(m.Weights, make([]float64, n))
	}

	return m
}

func zeroVector() features.Vector {
	return features.Vector{
		Values:        make([]float64, features.VectorLength),
		Names:         features.Schema(),
		SchemaVersion: features.SchemaVersion,
		Valid:         true,
	}
}

func TestPredictRanksByProbability(t *testing.T) {
	m := testModel("m1", []fields.Label{fields.None, fields.InvoiceNumber, fields.InvoiceDate}, []float64{0, 2, 1})
	require.NoError(t, m.Validate())

	p, err := m.Predict(zeroVector())
	require.NoError(t, err)

	den := 1 + math.Exp(2) + math.Exp(1)
	assert.Equal(t, fields.InvoiceNumber, p.Label)
	assert.InDelta(t, math.Exp(2)/den, p.Confidence, 1e-12)
	assert.Equal(t, "m1", p.ModelVersion)

	want := [TopK]Score{
		{Label: fields.InvoiceNumber, Score: math.Exp(2) / den},
		{Label: fields.InvoiceDate, Score: math.Exp(1) / den},
		{Label: fields.None, Score: 1 / den},
	}
	for i := range want {
		assert.Equal(t, want[i].Label, p.Top[i].Label)
		assert.InDelta(t, want[i].Score, p.Top[i].Score, 1e-12)
		assert.False(t, p.Top[i].Padded)
	}

	var sum float64
	for _, v := range p.Probabilities {
		sum += v
	}

	assert.InDelta(t, 1, sum, 1e-12)
	assert.Zero(t, p.Probabilities[fields.GrossTotal])
	assert.InDelta(t, p.Confidence, p.Probabilities[fields.InvoiceNumber], 1e-12)
}

func TestPredictTieBreaksOnLowestLabel(t *testing.T) {
	m := testModel("tie", []fields.Label{fields.None, fields.NetTotal}, []float64{0.3, 0.3})

	p, err := m.Predict(zeroVector())
	require.NoError(t, err)

	assert.Equal(t, fields.None, p.Label)
	assert.InDelta(t, 0.5, p.Confidence, 1e-12)

	assert.Equal(t, fields.None, p.Top[0].Label)
	assert.Equal(t, fields.NetTotal, p.Top[1].Label)
	assert.Equal(t, Score{Label: fields.InvoiceNumber, Padded: true}, p.Top[2])
}

func TestPredictSingleClassModel(t *testing.T) {
	m := testModel("one", []fields.Label{fields.GrossTotal}, []float64{-4})

	p, err := m.Predict(zeroVector())
	require.NoError(t, err)

	assert.Equal(t, fields.GrossTotal, p.Label)
	assert.InDelta(t, 1, p.Confidence, 1e-12)

	want := [TopK]Score{
		{Label: fields.GrossTotal, Score: 1},
		{Label: fields.None, Padded: true},
		{Label: fields.InvoiceNumber, Padded: true},
	}
	assert.Equal(t, want, p.Top)
}

func TestPredictUsesStandardizedWeights(t *testing.T) {
	m := testModel("w", []fields.Label{fields.None, fields.GrossTotal}, []float64{1, 0})

	idx := -1
	for i, n := range m.Features {
		if n == "text_kw_gross" {
			idx = i
		}
	}

	require.GreaterOrEqual(t, idx, 0)

	m.Mean[idx] = 0.5
	m.Scale[idx] = 0.5
	m.Weights[1][idx] = 3

	v := zeroVector()
	p, err := m.Predict(v)
	require.NoError(t, err)
	assert.Equal(t, fields.None, p.Label)

	v.Values[idx] = 1
	p, err = m.Predict(v)
	require.NoError(t, err)
	assert.Equal(t, fields.GrossTotal, p.Label)
}

func TestPredictIsDeterministic(t *testing.T) {
	m := testModel("d", []fields.Label{fields.None, fields.InvoiceNumber, fields.VatTotal}, []float64{0.1, 0.2, 0.3})
	v := zeroVector()
	v.Values[0] = 0.7

	a, err := m.Predict(v)
	require.NoError(t, err)

	b, err := m.Predict(v)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestPredictSchemaMismatch(t *testing.T) {
	m := testModel("m", []fields.Label{fields.None}, []float64{0})

	v := zeroVector()
	v.Values = v.Values[1:]

	_, err := m.Predict(v)
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
	assert.False(t, IsRetryable(err))

	v = zeroVector()
	v.SchemaVersion = "fx-0"
	_, err = m.Predict(v)
	assert.True(t, IsSchemaMismatch(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Model)
	}{
		{"no version", func(m *Model) { m.Version = "" }},
		{"no labels", func(m *Model) { m.Labels, m.Weights, m.Bias = nil, nil, nil }},
		{"unsorted labels", func(m *Model) { m.Labels[0], m.Labels[1] = m.Labels[1], m.Labels[0] }},
		{"invalid label", func(m *Model) { m.Labels[1] = fields.Label(99) }},
		{"short row", func(m *Model) { m.Weights[0] = m.Weights[0][1:] }},
		{"missing bias", func(m *Model) { m.Bias = m.Bias[:1] }},
		{"zero scale", func(m *Model) { m.Scale[3] = 0 }},
		{"nan weight", func(m *Model) { m.Weights[1][0] = math.NaN() }},
		{"short mean", func(m *Model) { m.Mean = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModel("v", []fields.Label{fields.None, fields.InvoiceDate}, []float64{0, 0})
			tt.mutate(m)

			err := m.Validate()
			require.Error(t, err)
			assert.True(t, IsInvalidModel(err), err.Error())
		})
	}

	var nilModel *Model
	assert.True(t, IsInvalidModel(nilModel.Validate()))
}

func TestCheckSchema(t *testing.T) {
	m := testModel("s", []fields.Label{fields.None}, []float64{0})
	require.NoError(t, m.CheckSchema())

	m.SchemaVersion = "fx-0"
	assert.True(t, IsSchemaMismatch(m.CheckSchema()))

	m = testModel("s", []fields.Label{fields.None}, []float64{0})
	m.Features[0] = "renamed"
	assert.True(t, IsSchemaMismatch(m.CheckSchema()))
}

func TestModelRoundTrip(t *testing.T) {
	m := testModel("rt", []fields.Label{fields.None, fields.IssuerName}, []float64{0.25, -0.5})
	m.Weights[1][4] = 1.5
	m.Samples = 42

	var buf bytes.Buffer

	n, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	got, err := ReadModel(&buf)
	require.NoError(t, err)

	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("model mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadModel(strings.NewReader("not gzip"))
	assert.True(t, IsInvalidModel(err))
}

func TestEngineLifecycle(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, StateUnloaded, e.State())
	assert.Nil(t, e.Model())

	_, err := e.Predict(zeroVector())
	require.Error(t, err)
	assert.True(t, IsNotReady(err))
	assert.True(t, IsRetryable(err))

	m1 := testModel("m1", []fields.Label{fields.None, fields.InvoiceNumber}, []float64{0, 1})
	require.NoError(t, e.Swap(m1))
	assert.Equal(t, StateReady, e.State())
	assert.Same(t, m1, e.Model())

	p, err := e.Predict(zeroVector())
	require.NoError(t, err)
	assert.Equal(t, "m1", p.ModelVersion)

	bad := testModel("bad", []fields.Label{fields.None}, []float64{0})
	bad.SchemaVersion = "fx-0"

	err = e.Swap(bad)
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, StateReady, e.State())
	assert.Same(t, m1, e.Model())

	m2 := testModel("m2", []fields.Label{fields.None, fields.InvoiceNumber}, []float64{1, 0})
	require.NoError(t, e.Swap(m2))
	assert.Same(t, m2, e.Model())

	e.Unload()
	assert.Equal(t, StateUnloaded, e.State())
	assert.Nil(t, e.Model())

	_, err = e.Predict(zeroVector())
	assert.True(t, IsNotReady(err))
}

func TestEngineLoaderFailureKeepsState(t *testing.T) {
	e := NewEngine()
	errBoom := errors.New("boom")

	err := e.Load(context.Background(), func(context.Context) (*Model, error) { return nil, errBoom })
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateUnloaded, e.State())
}

func TestEngineRejectsWhileLoading(t *testing.T) {
	e := NewEngine()
	m1 := testModel("m1", []fields.Label{fields.None}, []float64{0})
	require.NoError(t, e.Swap(m1))

	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- e.Load(context.Background(), func(context.Context) (*Model, error) {
			<-release

			return testModel("m2", []fields.Label{fields.None}, []float64{0}), nil
		})
	}()

	require.Eventually(t, func() bool { return e.State() == StateLoading }, time.Second, time.Millisecond)

	_, err := e.Predict(zeroVector())
	assert.True(t, IsNotReady(err))

	// a snapshot taken before the reload keeps working
	p, err := m1.Predict(zeroVector())
	require.NoError(t, err)
	assert.Equal(t, "m1", p.ModelVersion)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, e.State())
	assert.Equal(t, "m2", e.Model().Version)
}

func TestEngineConcurrentPredictions(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Swap(testModel("m0", []fields.Label{fields.None, fields.VatTotal}, []float64{0, 1})))

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 200 {
				p, err := e.Predict(zeroVector())
				if err != nil {
					assert.True(t, IsNotReady(err))

					continue
				}

				assert.Equal(t, fields.VatTotal, p.Label)
			}
		}()
	}

	for i := range 5 {
		m := testModel("m"+string(rune('1'+i)), []fields.Label{fields.None, fields.VatTotal}, []float64{0, 1})
		require.NoError(t, e.Swap(m))
	}

	wg.Wait()
}

func TestSoftmax(t *testing.T) {
	assert.Nil(t, Softmax(nil))

	p := Softmax([]float64{1000, 1000})
	assert.InDelta(t, 0.5, p[0], 1e-12)
	assert.InDelta(t, 0.5, p[1], 1e-12)
}
