// Package extract turns PubMed XML batch files into JSON record batches.
// Malformed articles are skipped without failing their batch, and a batch
// that cannot be read past some point keeps the records read before it.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/internal/batchfile"
	"github.com/pdiddy/pubmed-vector/internal/logging"
	"github.com/pdiddy/pubmed-vector/internal/metrics"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// BatchSummary holds counts from an extraction run.
type BatchSummary struct {
	Extracted int
	Skipped   int
	Failed    int

	// Records is the number of records written across extracted batches.
	Records int

	// Malformed is the number of articles skipped across extracted batches.
	Malformed int
}

// Total returns the number of batches processed.
func (s BatchSummary) Total() int {
	return s.Extracted + s.Skipped + s.Failed
}

// HasFailures reports whether any batch failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// FileResult is the outcome of extracting one batch file.
type FileResult struct {
	Records   []types.Record
	Malformed []*ExtractionError
}

// ExtractFile reads every record from the XML batch at path. If the document
// breaks off, the records decoded so far are returned together with a
// batch-scope *ExtractionError.
func ExtractFile(path string, log *zap.Logger) (FileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileResult{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	d := NewDecoder(f, WithBatch(batchfile.Name(path)), WithLogger(log))
	var res FileResult
	for {
		rec, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Malformed = d.Malformed()
			return res, err
		}
		res.Records = append(res.Records, rec)
	}
	res.Malformed = d.Malformed()
	return res, nil
}

// ExtractAll processes every *.xml batch in cfg.InputDir in name order and
// writes one JSON array per batch to cfg.OutputDir. A batch whose output
// already exists is skipped. A batch that yields no records writes nothing
// and counts as failed.
func ExtractAll(ctx context.Context, cfg types.ExtractConfig, log *zap.Logger, m *metrics.Metrics, w io.Writer) (BatchSummary, error) {
	cfg = cfg.WithDefaults()
	log = logging.OrNop(log).Named("extract")

	inputs, err := batchfile.List(cfg.InputDir, ".xml")
	if err != nil {
		return BatchSummary{}, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return BatchSummary{}, fmt.Errorf("creating output directory: %w", err)
	}

	var summary BatchSummary
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		name := batchfile.Name(in)
		out := batchfile.OutputName(in, cfg.OutputDir)
		if batchfile.Exists(out) {
			fmt.Fprintf(w, "skipped %s\n", name)
			summary.Skipped++
			continue
		}

		res, err := ExtractFile(in, log)
		if err != nil {
			log.Warn("batch ended early", zap.String("batch", name), zap.Int("records", len(res.Records)), zap.Error(err))
		}
		if len(res.Records) == 0 {
			if err == nil {
				err = errors.New("no valid articles")
			}
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			summary.Failed++
			continue
		}

		if werr := batchfile.WriteRecords(out, res.Records); werr != nil {
			fmt.Fprintf(w, "failed  %s: write error: %v\n", name, werr)
			summary.Failed++
			continue
		}

		if err != nil {
			fmt.Fprintf(w, "partial %s (%d records, %d malformed): %v\n", name, len(res.Records), len(res.Malformed), err)
		} else {
			fmt.Fprintf(w, "extracted %s (%d records, %d malformed)\n", name, len(res.Records), len(res.Malformed))
		}
		summary.Extracted++
		summary.Records += len(res.Records)
		summary.Malformed += len(res.Malformed)
		m.RecordsExtracted(len(res.Records))
		m.ArticlesMalformed(len(res.Malformed))
	}

	fmt.Fprintf(w, "\nextracted: %d, skipped: %d, failed: %d (records: %d, malformed: %d)\n",
		summary.Extracted, summary.Skipped, summary.Failed, summary.Records, summary.Malformed)
	return summary, nil
}
