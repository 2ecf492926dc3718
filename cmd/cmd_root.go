// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

var rootCmd = &cobra.Command{
	Use:   "fieldex",
	Short: "invoice field extraction",
	Long: `
fieldex classifies the text blocks of scanned German invoices into invoice
fields, assembles a candidate invoice and decides whether it can be accepted
automatically, must be reviewed or is rejected.
`,
	SilenceUsage: true,
}

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalOptions.configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&globalOptions.dbPath, "db", "", "DuckDB database file, overrides the configuration")
	rootCmd.PersistentFlags().StringVar(&globalOptions.modelVersion, "model", "", "Model version to load, the latest when empty")
	rootCmd.PersistentFlags().BoolVar(&globalOptions.traceHTTP, "trace-http", false, "Display the object storage HTTP requests-responses")
}
