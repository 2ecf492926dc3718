// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/jcodagnone/fieldex/store"
	"github.com/jcodagnone/fieldex/training"
	"github.com/spf13/cobra"
)

var trainOptions struct {
	samplesFile string
	set         string
	reviewed    bool
	folds       int
	version     string
	dryRun      bool
}

// loadSet picks the samples source among a JSONL file, a stored set and the
// reviewed documents.
func loadSet(repo store.Repository) (*training.Set, error) {
	switch {
	case trainOptions.samplesFile != "":
		f, err := os.Open(trainOptions.samplesFile)
		if err != nil {
			return nil, fmt.Errorf("opening samples: %w", err)
		}
		defer f.Close()

		return training.ReadJSONL(f, documentID(trainOptions.samplesFile))
	case trainOptions.reviewed:
		return repo.ReviewedSamples("reviewed")
	case trainOptions.set != "":
		return repo.LoadSamples(trainOptions.set)
	default:
		return nil, errors.New("one of --samples, --set or --reviewed is required")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Trains a block classifier and stores it as a new model version",
	Long: `Trains a block classifier on a labeled sample set. With --folds, the set is
cross validated instead and no model is stored.

  fieldex train --samples cmd/testdata/samples.jsonl --version v1
  fieldex train --reviewed --folds 5`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		opts := cfg.Training
		opts.ModelVersion = trainOptions.version

		if cmd.Flags().Changed("folds") {
			opts.Folds = trainOptions.folds
		}

		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		set, err := loadSet(repo)
		if err != nil {
			return err
		}

		log.Printf("Loaded %d samples from %s", set.Len(), set.Name)

		ex, err := newExtractor(cfg)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("folds") {
			cv, err := training.CrossValidate(ctx, set, ex, opts)
			if cv != nil {
				if perr := printJSON(cv); perr != nil {
					return errors.Join(err, perr)
				}
			}

			return err
		}

		res, err := training.Train(ctx, set, ex, opts)
		if err != nil {
			return err
		}

		for _, w := range res.Warnings {
			log.Printf("warning: %s", w)
		}

		if err := printJSON(res); err != nil {
			return err
		}

		if trainOptions.dryRun {
			return nil
		}

		models, err := openArtifacts(ctx, cfg)
		if err != nil {
			return err
		}

		if err := models.Save(ctx, res.Model); err != nil {
			return fmt.Errorf("saving model: %w", err)
		}

		if res.Metrics != nil {
			ev := &training.Evaluation{
				ModelVersion: res.Model.Version,
				SetName:      set.Name + "/" + res.EvaluatedOn,
				EvaluatedAt:  time.Now().UTC(),
				Metrics:      *res.Metrics,
			}
			if err := repo.SaveEvaluation(ev); err != nil {
				return err
			}
		}

		log.Printf("Model %s stored, trained on %d samples in %d epochs", res.Model.Version, res.TrainSize, res.EpochsCompleted)

		return nil
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measures a stored model against a labeled sample set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		set, err := loadSet(repo)
		if err != nil {
			return err
		}

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

		ev, err := training.Evaluate(ctx, engine.Model(), set, ex)
		if err != nil {
			return err
		}

		if !trainOptions.dryRun {
			if err := repo.SaveEvaluation(ev); err != nil {
				return err
			}
		}

		return printJSON(ev)
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Lists the stored models and their evaluations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		models, err := openArtifacts(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		infos, err := models.List(cmd.Context())
		if err != nil {
			return err
		}

		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		for _, info := range infos {
			fmt.Printf("%-24s %s %6d samples %8d bytes\n",
				info.Version, info.TrainedAt.Format(time.DateTime), info.Samples, info.Size)

			evs, err := repo.ListEvaluations(info.Version)
			if err != nil {
				return err
			}

			for _, ev := range evs {
				fmt.Printf("    %-20s accuracy %.4f macro-F1 %.4f log-loss %.4f\n",
					ev.SetName, ev.Metrics.Accuracy, ev.Metrics.MacroF1, ev.Metrics.LogLoss)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(modelsCmd)

	for _, c := range []*cobra.Command{trainCmd, evaluateCmd} {
		c.Flags().StringVar(&trainOptions.samplesFile, "samples", "", "JSONL file with one labeled sample per line")
		c.Flags().StringVar(&trainOptions.set, "set", "", "Name of a sample set stored in the database")
		c.Flags().BoolVar(&trainOptions.reviewed, "reviewed", false, "Use the blocks of the reviewed documents")
		c.Flags().BoolVar(&trainOptions.dryRun, "dry-run", false, "Do not persist the model nor the evaluation")
		c.MarkFlagsMutuallyExclusive("samples", "set", "reviewed")
	}

	trainCmd.Flags().IntVar(&trainOptions.folds, "folds", 5, "Cross validate with this many folds instead of training")
	trainCmd.Flags().StringVar(&trainOptions.version, "version", "", "Version of the new model, a timestamp when empty")
}
