// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package load inserts embedded record batches into the vector store.
package load

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/internal/batchfile"
	"github.com/pdiddy/pubmed-vector/internal/logging"
	"github.com/pdiddy/pubmed-vector/internal/metrics"
	"github.com/pdiddy/pubmed-vector/internal/vectorstore"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// BatchSummary holds counts from a load run.
type BatchSummary struct {
	Loaded int
	Failed int

	// Records is the number of records inserted across loaded batches.
	Records int
}

// Total returns the number of batches processed.
func (s BatchSummary) Total() int {
	return s.Loaded + s.Failed
}

// HasFailures reports whether any batch failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// LoadFile validates every record in the batch at path and inserts them in
// chunks of chunkSize. A batch with an invalid record inserts nothing.
func LoadFile(ctx context.Context, store vectorstore.Store, path string, dim, chunkSize int) (int, error) {
	recs, err := batchfile.ReadRecords(path)
	if err != nil {
		return 0, err
	}
	for _, r := range recs {
		if err := r.Validate(dim); err != nil {
			return 0, err
		}
	}
	if chunkSize <= 0 {
		chunkSize = len(recs)
	}

	inserted := 0
	for start := 0; start < len(recs); start += chunkSize {
		end := min(start+chunkSize, len(recs))
		if err := store.Insert(ctx, recs[start:end]); err != nil {
			return inserted, err
		}
		inserted += end - start
	}
	return inserted, nil
}

// LoadAll inserts every *.json batch in cfg.InputDir in name order and then
// flushes the store once. Reloading a batch is harmless because a repeated
// id replaces the stored record.
func LoadAll(ctx context.Context, store vectorstore.Store, cfg types.StoreConfig, log *zap.Logger, m *metrics.Metrics, w io.Writer) (BatchSummary, error) {
	cfg = cfg.WithDefaults()
	log = logging.OrNop(log).Named("load")

	inputs, err := batchfile.List(cfg.InputDir, ".json")
	if err != nil {
		return BatchSummary{}, err
	}

	var summary BatchSummary
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		name := batchfile.Name(in)
		n, err := LoadFile(ctx, store, in, cfg.Dimension, cfg.InsertBatchSize)
		if n > 0 {
			m.RecordsInserted(n)
		}
		if err != nil {
			log.Error("batch not loaded", zap.String("batch", name), zap.Int("inserted", n), zap.Error(err))
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			summary.Failed++
			continue
		}
		fmt.Fprintf(w, "loaded %s (%d records)\n", name, n)
		summary.Loaded++
		summary.Records += n
	}

	if summary.Records > 0 {
		if err := store.Flush(ctx); err != nil {
			return summary, err
		}
	}

	fmt.Fprintf(w, "\nloaded: %d, failed: %d (records: %d)\n", summary.Loaded, summary.Failed, summary.Records)
	return summary, nil
}
