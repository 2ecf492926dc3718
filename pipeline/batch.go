// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jcodagnone/fieldex/classifier"
	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/invoice"
	"github.com/jcodagnone/fieldex/policy"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Sink receives every processed document, for instance to persist it.
type Sink func(ctx context.Context, res *Result) error

// ProcessAll processes docs in order. Invoices that were not rejected are
// appended to the existing set seen by the following documents, so a batch
// holding the same invoice twice reports the duplicate. Failed documents are
// logged and counted; a model that is not ready or a cancelled ctx stops the
// batch. The returned error joins every document error.
func (p *Processor) ProcessAll(ctx context.Context, docs []*document.Document, existing []*invoice.Invoice, sink Sink) ([]*Result, Metrics, error) {
	var (
		bar     *progressbar.ProgressBar
		metrics Metrics
		results []*Result
		errs    []error
	)

	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(len(docs),
			progressbar.OptionSetDescription("Processing documents"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	seen := append([]*invoice.Invoice(nil), existing...)

	for _, doc := range docs {
		res, err := p.Process(ctx, doc, seen)
		if err == nil && sink != nil {
			err = sink(ctx, res)
		}

		if err != nil {
			metrics.Merge(&Metrics{Documents: 1, FailedDocuments: 1})
			errs = append(errs, err)

			log.Printf("Processing failed - %s", err)

			if classifier.IsNotReady(err) || ctx.Err() != nil {
				break
			}

			continue
		}

		results = append(results, res)
		metrics.Merge(&res.Metrics)

		if res.Decision.Decision != policy.Reject {
			seen = append(seen, res.Invoice)
		}

		if bar == nil {
			log.Printf("Processed %s - %s (confidence %.2f)", res.DocumentID, res.Decision.Decision, res.Invoice.Confidence)
		} else if err := bar.Add(1); err != nil {
			errs = append(errs, fmt.Errorf("updating progress bar: %w", err))
		}
	}

	log.Printf(
		"Processing complete - %d documents, %d failed, %d blocks (%d failed), %d accepted, %d to review, %d rejected.",
		metrics.Documents,
		metrics.FailedDocuments,
		metrics.Blocks,
		metrics.FailedBlocks,
		metrics.Accepted,
		metrics.Reviewed,
		metrics.Rejected,
	)

	return results, metrics, errors.Join(errs...)
}
