// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/jcodagnone/fieldex/training"
	"github.com/spf13/cobra"
)

const seedSamples = "cmd/testdata/samples.jsonl"

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Recreates the database with the samples of " + seedSamples + " and trains a first model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// remove old db if it exists
			if cfg.Store.Path != "" {
				_ = os.Remove(cfg.Store.Path)
				_ = os.Remove(cfg.Store.Path + ".wal")
			}

			db, repo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Open(seedSamples)
			if err != nil {
				return fmt.Errorf("failed to open samples: %w", err)
			}
			defer f.Close()

			set, err := training.ReadJSONL(f, "seed")
			if err != nil {
				return err
			}

			if err := repo.SaveSamples(set); err != nil {
				return fmt.Errorf("failed to save samples: %w", err)
			}

			ex, err := newExtractor(cfg)
			if err != nil {
				return err
			}

			opts := cfg.Training
			opts.ModelVersion = "seed"

			res, err := training.Train(cmd.Context(), set, ex, opts)
			if err != nil {
				return err
			}

			models, err := openArtifacts(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			if err := models.Save(cmd.Context(), res.Model); err != nil {
				return fmt.Errorf("failed to save model: %w", err)
			}

			log.Printf("Database seeded with %d samples, model %s trained", set.Len(), res.Model.Version)

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newSeedCmd())
}
