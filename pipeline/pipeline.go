// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs documents through feature extraction, classification,
// aggregation and the decision policy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"slices"
	"sync"

	"github.com/jcodagnone/fieldex/classifier"
	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/invoice"
	"github.com/jcodagnone/fieldex/patterns"
	"github.com/jcodagnone/fieldex/policy"
)

// ErrNoDocument is returned for a nil document.
var ErrNoDocument = errors.New("no document")

// Metrics tracks statistics about processed documents.
type Metrics struct {
	Documents       int `json:"documents"`
	FailedDocuments int `json:"failed_documents"`
	Blocks          int `json:"blocks"`
	FailedBlocks    int `json:"failed_blocks"`
	Accepted        int `json:"accepted"`
	Reviewed        int `json:"reviewed"`
	Rejected        int `json:"rejected"`
}

// Merge combines two Metrics.
func (m *Metrics) Merge(o *Metrics) *Metrics {
	m.Documents += o.Documents
	m.FailedDocuments += o.FailedDocuments
	m.Blocks += o.Blocks
	m.FailedBlocks += o.FailedBlocks
	m.Accepted += o.Accepted
	m.Reviewed += o.Reviewed
	m.Rejected += o.Rejected

	return m
}

// BlockResult is the outcome for one block. Error is set when the block
// could not be classified; the rest of the document is unaffected.
type BlockResult struct {
	Block      document.TextBlock    `json:"block"`
	Prediction classifier.Prediction `json:"prediction"`
	Hits       []patterns.Hit        `json:"hits,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Failed reports whether the block has no prediction.
func (b *BlockResult) Failed() bool { return b.Error != "" }

// Labeled returns the block with its prediction, ready to be stored.
func (b *BlockResult) Labeled() document.LabeledBlock {
	lb := document.LabeledBlock{Block: b.Block}
	if !b.Failed() {
		lb.SetPrediction(b.Prediction.Label, b.Prediction.Confidence)
	}

	return lb
}

// Result is the outcome for one document.
type Result struct {
	DocumentID   string           `json:"document_id"`
	ModelVersion string           `json:"model_version"`
	Blocks       []BlockResult    `json:"blocks"`
	Invoice      *invoice.Invoice `json:"invoice"`
	Decision     policy.Result    `json:"decision"`
	Metrics      Metrics          `json:"metrics"`
}

// Processor classifies documents with the model served by an engine.
type Processor struct {
	extractor *features.Extractor
	engine    *classifier.Engine
	policy    policy.Config
	workers   int
}

// NewProcessor returns a processor running up to workers blocks at a time,
// runtime.NumCPU() when workers is not positive.
func NewProcessor(ex *features.Extractor, engine *classifier.Engine, pol policy.Config, workers int) *Processor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Processor{extractor: ex, engine: engine, policy: pol, workers: workers}
}

// Workers returns the block concurrency.
func (p *Processor) Workers() int { return p.workers }

type job struct {
	siblings []document.TextBlock
	stats    features.PageStats
	index    int
	out      int
}

// Process classifies every block of doc, aggregates the candidate invoice and
// decides on it against existing. The model is taken once so the whole
// document is classified by the same version; a not ready engine fails the
// call with a retryable error. Block failures are reported per block. When
// ctx is cancelled the blocks classified so far are returned with ctx.Err().
func (p *Processor) Process(ctx context.Context, doc *document.Document, existing []*invoice.Invoice) (*Result, error) {
	if doc == nil {
		return nil, ErrNoDocument
	}

	model, err := p.engine.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("processing %s: %w", doc.ID, err)
	}

	// every page is materialized before the first block is extracted
	var (
		jobs   []job
		blocks []document.TextBlock
	)

	for _, page := range pages(doc) {
		stats := features.NewPageStats(page)
		for i := range page {
			jobs = append(jobs, job{siblings: page, stats: stats, index: i, out: len(blocks)})
			blocks = append(blocks, page[i])
		}
	}

	res := &Result{DocumentID: doc.ID, ModelVersion: model.Version, Blocks: make([]BlockResult, len(blocks))}

	var wg sync.WaitGroup

	semaphore := make(chan struct{}, p.workers)
	errChan := make(chan error, len(jobs))

	for _, j := range jobs {
		wg.Add(1)

		go func(j job) {
			defer wg.Done()
			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			br := &res.Blocks[j.out]
			br.Block = j.siblings[j.index]

			if err := ctx.Err(); err != nil {
				br.Error = err.Error()

				return
			}

			if err := p.classify(model, j, br); err != nil {
				br.Error = err.Error()
				errChan <- fmt.Errorf("block %d/%d: %w", br.Block.Page, br.Block.LineIndex, err)
			}
		}(j)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		log.Printf("Classification failed in %s - %s", doc.ID, err)
	}

	slices.SortStableFunc(res.Blocks, func(a, b BlockResult) int {
		return document.Compare(a.Block, b.Block)
	})

	res.Metrics = Metrics{Documents: 1, Blocks: len(res.Blocks)}
	for i := range res.Blocks {
		if res.Blocks[i].Failed() {
			res.Metrics.FailedBlocks++
		}
	}

	if err := ctx.Err(); err != nil {
		res.Metrics.FailedDocuments = 1

		return res, err
	}

	res.Invoice = invoice.Aggregate(doc.ID, candidates(res.Blocks), model.Version)
	res.Decision = p.policy.Decide(res.Invoice, res.Invoice.Confidence, existing)

	switch res.Decision.Decision {
	case policy.Accept:
		res.Metrics.Accepted++
	case policy.Review:
		res.Metrics.Reviewed++
	case policy.Reject:
		res.Metrics.Rejected++
	}

	return res, nil
}

// classify never lets a panic escape a worker.
func (p *Processor) classify(model *classifier.Model, j job, br *BlockResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	f := p.extractor.ExtractWith(j.siblings, j.index, j.stats)
	br.Hits = f.RegexHits

	pred, err := model.Predict(f.Vector)
	if err != nil {
		return err
	}

	br.Prediction = pred

	return nil
}

// pages returns sorted copies of the page block lists, with the page number
// and dimensions filled in.
func pages(doc *document.Document) [][]document.TextBlock {
	d := document.Document{ID: doc.ID, Pages: make([]document.Page, len(doc.Pages))}
	for i, p := range doc.Pages {
		d.Pages[i] = p
		d.Pages[i].Blocks = slices.Clone(p.Blocks)
	}

	d.Normalize()

	slices.SortStableFunc(d.Pages, func(a, b document.Page) int { return a.Number - b.Number })

	ret := make([][]document.TextBlock, 0, len(d.Pages))
	for _, p := range d.Pages {
		if len(p.Blocks) > 0 {
			ret = append(ret, p.Blocks)
		}
	}

	return ret
}

func candidates(blocks []BlockResult) []invoice.Candidate {
	var ret []invoice.Candidate

	for i := range blocks {
		b := &blocks[i]
		if b.Failed() || b.Prediction.Label == fields.None {
			continue
		}

		ret = append(ret, invoice.Candidate{Label: b.Prediction.Label, Confidence: b.Prediction.Confidence, Block: b.Block})
	}

	return ret
}
