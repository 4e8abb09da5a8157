// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/internal/batchfile"
	"github.com/pdiddy/pubmed-vector/internal/logging"
)

// BatchResult holds the outcome of a download run.
type BatchResult struct {
	Found      int
	Downloaded int
	Skipped    int
	Failed     int
}

// Total returns the number of batches processed.
func (r BatchResult) Total() int {
	return r.Downloaded + r.Skipped + r.Failed
}

// HasFailures reports whether any batch failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// BatchFileName returns the name of the n-th (1-based) XML batch file.
func BatchFileName(n int) string {
	return fmt.Sprintf("batch_%05d.xml", n)
}

// DownloadBatches searches PubMed, splits the ids into FetchBatchSize
// chunks and writes each chunk's XML to OutputDir/batch_NNNNN.xml. Existing
// batch files are skipped; a failed chunk is reported and the run continues.
func DownloadBatches(ctx context.Context, c *Client, log *zap.Logger, w io.Writer) (BatchResult, error) {
	log = logging.OrNop(log).Named("fetch")

	found, err := c.SearchIDs(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	result := BatchResult{Found: found.Count}
	fmt.Fprintf(w, "found %d articles for %q\n", found.Count, c.cfg.Query)
	log.Info("search complete",
		zap.Int("count", found.Count),
		zap.Int("ids", len(found.IDs)),
		zap.String("query_key", found.QueryKey))

	size := c.cfg.FetchBatchSize
	for i, n := 0, 1; i < len(found.IDs); i, n = i+size, n+1 {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ids := found.IDs[i:min(i+size, len(found.IDs))]
		name := BatchFileName(n)
		path := filepath.Join(c.cfg.OutputDir, name)
		if batchfile.Exists(path) {
			fmt.Fprintf(w, "skipped %s\n", name)
			result.Skipped++
			continue
		}

		body, err := c.FetchXML(ctx, ids)
		if err == nil {
			err = batchfile.WriteFile(path, body)
		}
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			log.Error("batch download failed", zap.String("batch", name), zap.Int("ids", len(ids)), zap.Error(err))
			result.Failed++
			continue
		}
		fmt.Fprintf(w, "downloaded %s (%d ids)\n", name, len(ids))
		result.Downloaded++
	}

	fmt.Fprintf(w, "\ndownloaded: %d, skipped: %d, failed: %d (total: %d)\n",
		result.Downloaded, result.Skipped, result.Failed, result.Total())
	return result, nil
}
