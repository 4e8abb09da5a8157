// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-vector/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract records from XML batches into JSON batches",
	Long: `Extract parses every PubMed XML batch in xml_batches/ and writes one
JSON array of records per batch to json_batches/. Malformed articles are
skipped and counted; a truncated batch keeps the records read before the
break. Batches whose JSON output already exists are skipped.`,
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	summary, err := extract.ExtractAll(ctx, appConfig.Extract, logger, appMetrics, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d batch(es) failed extraction", summary.Failed)
	}
	return nil
}

func init() {
	f := extractCmd.Flags()
	f.String("input-dir", "xml_batches", "directory of XML batches")
	f.String("output-dir", "json_batches", "directory for JSON batches")
	bindFlags(f, map[string]string{
		"extract.input_dir":  "input-dir",
		"extract.output_dir": "output-dir",
	})

	rootCmd.AddCommand(extractCmd)
}
