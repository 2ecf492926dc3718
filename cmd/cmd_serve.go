// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"log"

	"github.com/jcodagnone/fieldex/artifact"
	"github.com/jcodagnone/fieldex/classifier"
	"github.com/jcodagnone/fieldex/pipeline"
	"github.com/jcodagnone/fieldex/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the extraction HTTP API",
	Long: `Runs the extraction HTTP API. The server starts even when no model can be
loaded; documents are then answered with 503 until a model is loaded through
POST /api/model/reload.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		models, err := openArtifacts(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		ex, err := newExtractor(cfg)
		if err != nil {
			return err
		}

		loader := artifact.Loader(models, cfg.Artifacts.Version)

		engine := classifier.NewEngine()
		if err := engine.Load(cmd.Context(), loader); err != nil {
			log.Printf("No model loaded, serving as not ready - %s", err)
		}

		p := pipeline.NewProcessor(ex, engine, cfg.Policy, cfg.Pipeline.Workers)

		return server.NewServer(p, engine, repo, loader).Run(cfg.Server.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, overrides the configuration")
}
