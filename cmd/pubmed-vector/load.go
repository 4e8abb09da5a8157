// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-vector/internal/load"
	"github.com/pdiddy/pubmed-vector/internal/vectorstore"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Insert embedded batches into the vector store",
	Long: `Load validates every record in json_embedded/ and inserts the batches
into the collection, creating it first if needed. A batch containing an
invalid record (missing field, wrong embedding length) is rejected as a
whole. Reloading is safe: a repeated id replaces the stored record.`,
	RunE: runLoad,
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	summary, err := loadAll(ctx)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d batch(es) failed loading", summary.Failed)
	}
	return nil
}

func loadAll(ctx context.Context) (load.BatchSummary, error) {
	store, err := vectorstore.Open(ctx, appConfig.Store, logger)
	if err != nil {
		return load.BatchSummary{}, err
	}
	defer store.Close()
	return load.LoadAll(ctx, store, appConfig.Store, logger, appMetrics, os.Stdout)
}

func init() {
	f := loadCmd.Flags()
	f.String("input-dir", "json_embedded", "directory of embedded batches")
	f.Int("insert-batch-size", 500, "records per insert call")
	bindFlags(f, map[string]string{
		"store.input_dir":         "input-dir",
		"store.insert_batch_size": "insert-batch-size",
	})

	rootCmd.AddCommand(loadCmd)
}
