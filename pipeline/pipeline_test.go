// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/fieldex/classifier"
	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/invoice"
	"github.com/jcodagnone/fieldex/pipeline/pipelinetest"
	"github.com/jcodagnone/fieldex/policy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan15 = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func newProcessor(t *testing.T, workers int) *Processor {
	t.Helper()

	ex, err := features.NewExtractor(features.DefaultConfig())
	require.NoError(t, err)

	engine, err := pipelinetest.Engine("rules-1")
	require.NoError(t, err)

	return NewProcessor(ex, engine, policy.DefaultConfig(), workers)
}

func sampleDocument(id, number string, date time.Time) *document.Document {
	return pipelinetest.Document(id, pipelinetest.Lines(number, date, 1000))
}

func TestProcessAccepts(t *testing.T) {
	lines := pipelinetest.Lines("RE-2025-001", jan15, 1000)
	doc := pipelinetest.Document("doc-1", lines)

	res, err := newProcessor(t, 4).Process(context.Background(), doc, nil)
	require.NoError(t, err)

	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Equal(t, "rules-1", res.ModelVersion)
	require.Len(t, res.Blocks, len(lines))

	for i, b := range res.Blocks {
		assert.False(t, b.Failed(), b.Error)
		assert.Equal(t, lines[i].Label, b.Prediction.Label, b.Block.Text)
		assert.Equal(t, i, b.Block.LineIndex)
	}

	inv := res.Invoice
	require.NotNil(t, inv)
	assert.Equal(t, "RE-2025-001", inv.Number)
	assert.Equal(t, jan15, inv.Date)
	assert.Equal(t, "10115", inv.IssuerPostalCode)
	assert.Equal(t, "Berlin", inv.IssuerCity)
	assert.Equal(t, "1190.00", inv.Value(fields.GrossTotal))
	assert.Greater(t, inv.Confidence, 0.8)

	assert.Equal(t, policy.Accept, res.Decision.Decision, "%v", res.Decision.Codes())
	assert.Equal(t, Metrics{Documents: 1, Blocks: len(lines), Accepted: 1}, res.Metrics)
}

func TestProcessWorkerCountDoesNotChangeResults(t *testing.T) {
	doc := sampleDocument("doc-1", "RE-2025-001", jan15)

	one, err := newProcessor(t, 1).Process(context.Background(), doc, nil)
	require.NoError(t, err)

	many, err := newProcessor(t, 16).Process(context.Background(), doc, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(one.Blocks, many.Blocks); diff != "" {
		t.Errorf("results depend on the number of workers (-1 +16):\n%s", diff)
	}

	assert.Equal(t, one.Decision, many.Decision)
}

func TestProcessMergesInReadingOrder(t *testing.T) {
	doc := sampleDocument("doc-1", "RE-2025-001", jan15)

	second := doc.Pages[0]
	second.Number = 2
	second.Blocks = []document.TextBlock{{Text: "Seite 2", LineIndex: 0}}

	// pages and blocks out of order
	doc.Pages = []document.Page{second, doc.Pages[0]}
	blocks := doc.Pages[1].Blocks
	blocks[0], blocks[9] = blocks[9], blocks[0]

	res, err := newProcessor(t, 3).Process(context.Background(), doc, nil)
	require.NoError(t, err)
	require.Len(t, res.Blocks, 11)

	for i := 1; i < len(res.Blocks); i++ {
		assert.Negative(t, document.Compare(res.Blocks[i-1].Block, res.Blocks[i].Block))
	}

	assert.Equal(t, "Seite 2", res.Blocks[10].Block.Text)
	assert.Equal(t, 2, res.Blocks[10].Block.Page)

	// the input is left untouched
	assert.Equal(t, 9, blocks[0].LineIndex)
}

func TestProcessNotReady(t *testing.T) {
	ex, err := features.NewExtractor(features.DefaultConfig())
	require.NoError(t, err)

	p := NewProcessor(ex, classifier.NewEngine(), policy.DefaultConfig(), 0)
	assert.Positive(t, p.Workers())

	_, err = p.Process(context.Background(), sampleDocument("doc-1", "RE-1", jan15), nil)
	require.Error(t, err)
	assert.True(t, classifier.IsNotReady(err))
	assert.True(t, classifier.IsRetryable(err))

	_, err = p.Process(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newProcessor(t, 2).Process(ctx, sampleDocument("doc-1", "RE-1", jan15), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)

	assert.Nil(t, res.Invoice)
	assert.Equal(t, 10, res.Metrics.FailedBlocks)
	assert.Equal(t, 1, res.Metrics.FailedDocuments)
}

func TestProcessEmptyDocument(t *testing.T) {
	res, err := newProcessor(t, 2).Process(context.Background(), &document.Document{ID: "empty"}, nil)
	require.NoError(t, err)

	assert.Empty(t, res.Blocks)
	assert.Zero(t, res.Invoice.Confidence)
	assert.Equal(t, policy.Reject, res.Decision.Decision)
}

func TestProcessAllReportsDuplicatesWithinBatch(t *testing.T) {
	docs := []*document.Document{
		sampleDocument("doc-1", "RE-2025-001", jan15),
		sampleDocument("doc-2", "RE-2025-001", jan15.AddDate(0, 0, 3)),
		sampleDocument("doc-3", "RE-2025-002", jan15),
	}

	var stored []string

	sink := func(_ context.Context, res *Result) error {
		stored = append(stored, res.DocumentID)

		return nil
	}

	results, metrics, err := newProcessor(t, 4).ProcessAll(context.Background(), docs, nil, sink)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []string{"doc-1", "doc-2", "doc-3"}, stored)
	assert.Equal(t, policy.Accept, results[0].Decision.Decision)
	assert.Equal(t, policy.Review, results[1].Decision.Decision)
	assert.Equal(t, []string{results[0].Invoice.ID}, results[1].Decision.Duplicates)
	assert.Equal(t, policy.Accept, results[2].Decision.Decision)

	assert.Equal(t, Metrics{Documents: 3, Blocks: 30, Accepted: 2, Reviewed: 1}, metrics)
}

func TestProcessAllChecksExisting(t *testing.T) {
	existing := []*invoice.Invoice{{ID: "old", Number: "RE-2025-001", Date: jan15, GrossTotal: decimalAmount("1190.00")}}

	results, _, err := newProcessor(t, 4).ProcessAll(context.Background(),
		[]*document.Document{sampleDocument("doc-1", "RE-2025-001", jan15.AddDate(0, 0, 3))}, existing, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"old"}, results[0].Decision.Duplicates)
	assert.Len(t, existing, 1)
}

func TestProcessAllSinkErrors(t *testing.T) {
	boom := errors.New("boom")
	docs := []*document.Document{sampleDocument("a", "RE-1", jan15), sampleDocument("b", "RE-2", jan15)}

	results, metrics, err := newProcessor(t, 2).ProcessAll(context.Background(), docs, nil,
		func(_ context.Context, res *Result) error {
			if res.DocumentID == "a" {
				return boom
			}

			return nil
		})

	require.ErrorIs(t, err, boom)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].DocumentID)
	assert.Equal(t, 2, metrics.Documents)
	assert.Equal(t, 1, metrics.FailedDocuments)
}

func TestProcessAllStopsWhenNotReady(t *testing.T) {
	ex, err := features.NewExtractor(features.DefaultConfig())
	require.NoError(t, err)

	p := NewProcessor(ex, classifier.NewEngine(), policy.DefaultConfig(), 2)
	docs := []*document.Document{sampleDocument("a", "RE-1", jan15), sampleDocument("b", "RE-2", jan15)}

	results, metrics, err := p.ProcessAll(context.Background(), docs, nil, nil)
	require.Error(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, metrics.FailedDocuments)
}

func TestMetricsMerge(t *testing.T) {
	m := &Metrics{Documents: 1, Blocks: 10, Accepted: 1}
	m.Merge(&Metrics{Documents: 2, FailedDocuments: 1, Blocks: 5, FailedBlocks: 2, Reviewed: 1}).
		Merge(&Metrics{Rejected: 1})

	assert.Equal(t, Metrics{Documents: 3, FailedDocuments: 1, Blocks: 15, FailedBlocks: 2, Accepted: 1, Reviewed: 1, Rejected: 1}, *m)
}

func TestLabeled(t *testing.T) {
	br := BlockResult{Block: document.TextBlock{Text: "x"}, Prediction: classifier.Prediction{Label: fields.VatTotal, Confidence: 0.7}}

	lb := br.Labeled()
	assert.True(t, lb.HasPrediction())
	assert.Equal(t, fields.VatTotal, lb.Predicted)

	br.Error = "failed"
	failed := br.Labeled()
	assert.False(t, failed.HasPrediction())
}

func decimalAmount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}
