// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/pipeline"
	"github.com/spf13/cobra"
)

var extractOptions struct {
	dryRun  bool
	workers int
	output  bool
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>...",
	Short: "Extracts the invoice fields of the given documents and decides on them",
	Long: `Reads every document (JSON, or hOCR when the extension is .html or .hocr),
classifies its blocks, assembles the candidate invoice and applies the
business rules. Invoices already stored are considered for duplicate
detection, and so are the earlier documents of the same run.

  fieldex extract scans/*.hocr
  fieldex extract --dry-run --json invoice.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if extractOptions.workers > 0 {
			cfg.Pipeline.Workers = extractOptions.workers
		}

		docs := make([]*document.Document, 0, len(args))
		for _, path := range args {
			doc, err := readDocument(path)
			if err != nil {
				return err
			}

			docs = append(docs, doc)
		}

		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		models, err := openArtifacts(ctx, cfg)
		if err != nil {
			return err
		}

		engine, err := loadEngine(ctx, cfg, models)
		if err != nil {
			return err
		}

		ex, err := newExtractor(cfg)
		if err != nil {
			return err
		}

		existing, err := repo.DuplicateCandidates("")
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		sink := func(_ context.Context, res *pipeline.Result) error {
			log.Printf("%s: %s (%s, confidence %.3f) %v",
				res.DocumentID, res.Decision.Decision, res.Decision.Level, res.Decision.Confidence, res.Decision.Codes())

			if extractOptions.output {
				if err := enc.Encode(res); err != nil {
					return fmt.Errorf("writing result: %w", err)
				}
			}

			if extractOptions.dryRun {
				return nil
			}

			return repo.SaveDocumentResult(res)
		}

		p := pipeline.NewProcessor(ex, engine, cfg.Policy, cfg.Pipeline.Workers)
		_, metrics, err := p.ProcessAll(ctx, docs, existing, sink)

		log.Printf("Extraction metrics - %d documents (%d failed), %d blocks (%d failed); %d accepted, %d to review, %d rejected",
			metrics.Documents, metrics.FailedDocuments, metrics.Blocks, metrics.FailedBlocks,
			metrics.Accepted, metrics.Reviewed, metrics.Rejected)

		return err
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVar(&extractOptions.dryRun, "dry-run", false, "Do not persist any result")
	extractCmd.Flags().BoolVar(&extractOptions.output, "json", false, "Write every result as a JSON line to stdout")
	extractCmd.Flags().IntVar(
		&extractOptions.workers,
		"max-procs",
		0,
		"Max number of blocks classified concurrently. Defaults to the configuration, then the number of CPUs",
	)
}
