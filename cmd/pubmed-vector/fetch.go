// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-vector/internal/fetch"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download PubMed records matching a query into XML batches",
	Long: `Fetch runs an E-utilities esearch for --query, then downloads the
matching records with efetch in batches of up to 100 ids. Each batch is
written to xml_batches/batch_NNNNN.xml; existing batch files are kept.

Requests are rate limited to 3 per second, or 10 per second when an NCBI
API key is configured (.secrets/ncbi-api-key or PUBMED_VECTOR_FETCH_API_KEY).`,
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := appConfig.Fetch
	if cfg.Query == "" {
		return errors.New("a search query is required: use --query")
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := fetch.DownloadBatches(ctx, fetch.NewClient(cfg), logger, os.Stdout)
	if err != nil {
		return err
	}
	if res.HasFailures() {
		return fmt.Errorf("%d batch(es) failed to download", res.Failed)
	}
	return nil
}

func init() {
	f := fetchCmd.Flags()
	f.String("query", "", "PubMed search term")
	f.Int("rel-days", 0, "only records published in the last N days")
	f.String("min-date", "", "earliest publication date (YYYY/MM/DD)")
	f.String("max-date", "", "latest publication date (YYYY/MM/DD)")
	f.String("output-dir", "xml_batches", "directory for XML batches")
	bindFlags(f, map[string]string{
		"fetch.query":      "query",
		"fetch.rel_days":   "rel-days",
		"fetch.min_date":   "min-date",
		"fetch.max_date":   "max-date",
		"fetch.output_dir": "output-dir",
	})

	rootCmd.AddCommand(fetchCmd)
}
