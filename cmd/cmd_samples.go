// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log"
	"maps"
	"os"
	"slices"

	"github.com/jcodagnone/fieldex/training"
	"github.com/spf13/cobra"
)

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "Manage the labeled sample sets",
}

var samplesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the stored sample sets",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		sets, err := repo.SampleSets()
		if err != nil {
			return err
		}

		for _, name := range slices.Sorted(maps.Keys(sets)) {
			fmt.Printf("%-32s %6d\n", name, sets[name])
		}

		return nil
	},
}

var samplesImportCmd = &cobra.Command{
	Use:   "import <name> <file.jsonl>",
	Short: "Stores a JSONL sample file as a named set, replacing it",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("opening samples: %w", err)
		}
		defer f.Close()

		set, err := training.ReadJSONL(f, args[0])
		if err != nil {
			return err
		}

		if err := repo.SaveSamples(set); err != nil {
			return err
		}

		log.Printf("Stored %d samples as %s", set.Len(), set.Name)

		return nil
	},
}

var samplesExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Writes a stored set as JSONL to stdout. The set \"reviewed\" holds the reviewed documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		var set *training.Set
		if args[0] == "reviewed" {
			set, err = repo.ReviewedSamples(args[0])
		} else {
			set, err = repo.LoadSamples(args[0])
		}

		if err != nil {
			return err
		}

		return set.WriteJSONL(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(samplesCmd)
	samplesCmd.AddCommand(samplesListCmd)
	samplesCmd.AddCommand(samplesImportCmd)
	samplesCmd.AddCommand(samplesExportCmd)
}
