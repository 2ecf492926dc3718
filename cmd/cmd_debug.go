// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jcodagnone/fieldex/patterns"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugPatternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Runs the pattern catalogue over lines of text",
	Long: `Reads one line of text per line, and prints the line followed by the
pattern hits and the parsed values.

$ echo "Gesamtbetrag 1.190,00 EUR" | fieldex debug patterns
Gesamtbetrag 1.190,00 EUR	[{"pattern":"amount_eu",...}]	amount=1190`,
	Run: func(_ *cobra.Command, _ []string) {
		input := os.Stdin
		if isatty.IsTerminal(input.Fd()) {
			fmt.Fprintln(os.Stderr, "Enter the lines to analyze, one per line…")
		}

		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			line := scanner.Text()

			hits, err := json.Marshal(patterns.Match(line))
			if err != nil {
				log.Fatal(err)
			}

			fmt.Printf("%s\t%s", line, hits)

			if v, ok := patterns.LastAmount(line); ok {
				fmt.Printf("\tamount=%s", v)
			}

			if v, ok := patterns.FindDate(line); ok {
				fmt.Printf("\tdate=%s", v.Format("2006-01-02"))
			}

			if v, ok := patterns.FindInvoiceNumber(line); ok {
				fmt.Printf("\tnumber=%s", v)
			}

			fmt.Println()
		}

		if err := scanner.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			os.Exit(1)
		}
	},
}

var debugFeaturesCmd = &cobra.Command{
	Use:   "features [file]",
	Short: "Prints the features of every block of a document",
	Long: `Reads a document (JSON, or hOCR when the extension is .html or .hocr) from a
file or from stdin, and prints one JSON line per block with its extracted
features and its vector.

  fieldex debug features scans/invoice-7.hocr`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		path := "-"
		if len(args) > 0 {
			path = args[0]
		} else if isatty.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(os.Stderr, "Reading from stdin. Paste a JSON document and press Ctrl+D to finish.")
		}

		doc, err := readDocument(path)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ex, err := newExtractor(cfg)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)

		for _, page := range doc.Pages {
			for _, f := range ex.ExtractPage(page.Blocks) {
				if err := enc.Encode(f); err != nil {
					return err
				}
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugPatternsCmd)
	debugCmd.AddCommand(debugFeaturesCmd)
}
