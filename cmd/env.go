// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/jcodagnone/fieldex/artifact"
	"github.com/jcodagnone/fieldex/classifier"
	"github.com/jcodagnone/fieldex/config"
	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/features"
	"github.com/jcodagnone/fieldex/store"
)

var globalOptions struct {
	configPath   string
	dbPath       string
	modelVersion string
	traceHTTP    bool
}

// loadConfig reads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalOptions.configPath)
	if err != nil {
		return nil, err
	}

	if globalOptions.dbPath != "" {
		cfg.Store.Path = globalOptions.dbPath
	}

	if globalOptions.modelVersion != "" {
		if err := artifact.ValidateVersion(globalOptions.modelVersion); err != nil {
			return nil, err
		}

		cfg.Artifacts.Version = globalOptions.modelVersion
	}

	if globalOptions.traceHTTP && cfg.Artifacts.Minio != nil {
		cfg.Artifacts.Minio.Trace = true
	}

	return cfg, nil
}

// openRepository opens the database and makes sure the schema exists.
func openRepository(cfg *config.Config) (*sql.DB, store.Repository, error) {
	if dir := filepath.Dir(cfg.Store.Path); cfg.Store.Path != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	repo := store.NewSQLRepository(db)
	if err := repo.CreateSchema(); err != nil {
		db.Close()

		return nil, nil, fmt.Errorf("creating schema: %w", err)
	}

	return db, repo, nil
}

func openArtifacts(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	if cfg.Artifacts.Minio != nil {
		return artifact.NewMinioStore(ctx, *cfg.Artifacts.Minio)
	}

	return artifact.NewFileStore(cfg.Artifacts.Dir), nil
}

// loadEngine returns an engine serving the configured model version.
func loadEngine(ctx context.Context, cfg *config.Config, models artifact.Store) (*classifier.Engine, error) {
	engine := classifier.NewEngine()
	if err := engine.Load(ctx, artifact.Loader(models, cfg.Artifacts.Version)); err != nil {
		return nil, fmt.Errorf("loading model: %w", err)
	}

	return engine, nil
}

func newExtractor(cfg *config.Config) (*features.Extractor, error) {
	return features.NewExtractor(cfg.Features)
}

// readDocument reads a JSON or hOCR document. "-" is stdin, read as JSON.
func readDocument(path string) (*document.Document, error) {
	var (
		r   io.Reader = os.Stdin
		err error
	)

	if path != "-" {
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("opening document: %w", err)
		}
		defer f.Close()

		r = f
	}

	var doc *document.Document

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".hocr", ".xhtml":
		doc, err = document.ReadHOCR(r, documentID(path))
	default:
		doc, err = document.ReadJSON(r)
		if err == nil && doc.ID == "" {
			doc.ID = documentID(path)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return doc, nil
}

// documentID is the file name without extension.
func documentID(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}
