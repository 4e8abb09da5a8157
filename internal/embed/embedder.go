// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/pubmed-vector/internal/batchfile"
	"github.com/pdiddy/pubmed-vector/internal/httputil"
	"github.com/pdiddy/pubmed-vector/internal/logging"
	"github.com/pdiddy/pubmed-vector/internal/metrics"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// Embedder attaches embeddings to record batches. Records within a batch
// are embedded one at a time; ProcessAll may run several batches at once.
type Embedder struct {
	client  Client
	cfg     types.EmbeddingConfig
	retry   httputil.Policy
	limiter *rate.Limiter
	log     *zap.Logger
	metrics *metrics.Metrics
}

// lookuper is implemented by clients that can answer from a local cache.
type lookuper interface {
	Lookup(text string) ([]float32, bool)
}

// NewEmbedder returns an Embedder over client. A positive cfg.Delay allows
// at most one remote embedding call per Delay across all workers; cache
// hits do not wait.
func NewEmbedder(client Client, cfg types.EmbeddingConfig, log *zap.Logger, m *metrics.Metrics) *Embedder {
	cfg = cfg.WithDefaults()
	e := &Embedder{
		client:  client,
		cfg:     cfg,
		retry:   httputil.NewPolicy(cfg.Retry),
		log:     logging.OrNop(log).Named("embed"),
		metrics: m,
	}
	if cfg.Delay > 0 {
		e.limiter = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}
	return e
}

// Result is the outcome of embedding one batch.
type Result struct {
	// Records holds the embedded records in input order. Dropped records
	// are absent; degraded records carry a zero vector.
	Records  []types.Record
	Embedded int
	Dropped  int
	Degraded int
}

// Process embeds every record of one batch. Per-record failures follow the
// failure policy and never fail the batch; Process returns an error only
// when ctx ends, in which case the batch is incomplete.
func (e *Embedder) Process(ctx context.Context, batch string, recs []types.Record) (Result, error) {
	res := Result{Records: make([]types.Record, 0, len(recs))}
	dim := e.client.Dimension()

	for _, rec := range recs {
		vec, err := e.embedOne(ctx, rec.EmbeddingText(), dim)
		if err == nil {
			rec.Embedding = vec
			rec.Degraded = false
			res.Records = append(res.Records, rec)
			res.Embedded++
			e.metrics.Embedding(metrics.OutcomeOK)
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}

		fields := []zap.Field{zap.String("batch", batch), zap.String("id", rec.ID), zap.Error(err)}
		if e.cfg.OnFailure == types.FailZeroVector && IsRequestError(err) {
			rec.Embedding = make([]float32, dim)
			rec.Degraded = true
			res.Records = append(res.Records, rec)
			res.Degraded++
			e.metrics.Embedding(metrics.OutcomeDegraded)
			e.log.Warn("embedding failed, stored zero vector", fields...)
			continue
		}
		res.Dropped++
		e.metrics.Embedding(metrics.OutcomeDropped)
		e.log.Error("embedding failed, record dropped", fields...)
	}
	return res, nil
}

// embedOne answers from the client's cache when it has one, otherwise calls
// the client under the rate limit, retrying request errors.
// The length check is repeated here so no client can bypass it.
func (e *Embedder) embedOne(ctx context.Context, text string, dim int) ([]float32, error) {
	if l, ok := e.client.(lookuper); ok {
		if vec, hit := l.Lookup(text); hit && len(vec) == dim {
			return vec, nil
		}
	}

	var vec []float32
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		v, err := e.client.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	}, IsRequestError)
	if err != nil {
		return nil, err
	}
	if len(vec) != dim {
		return nil, &DimensionError{Got: len(vec), Want: dim}
	}
	return vec, nil
}

// ProcessFile embeds the batch at inPath and writes the result to outPath.
// The output is written only after every record has been handled.
func (e *Embedder) ProcessFile(ctx context.Context, inPath, outPath string) (Result, error) {
	recs, err := batchfile.ReadRecords(inPath)
	if err != nil {
		return Result{}, err
	}
	res, err := e.Process(ctx, batchfile.Name(inPath), recs)
	if err != nil {
		return res, err
	}
	if err := batchfile.WriteRecords(outPath, res.Records); err != nil {
		return res, fmt.Errorf("write error: %w", err)
	}
	return res, nil
}

// BatchCounts counts batches by outcome.
type BatchCounts struct {
	Processed int
	Skipped   int
	Failed    int
}

// Summary holds counts from an embedding run.
type Summary struct {
	Batches  BatchCounts
	Embedded int
	Dropped  int
	Degraded int
}

// Total returns the number of batches seen.
func (s Summary) Total() int {
	return s.Batches.Processed + s.Batches.Skipped + s.Batches.Failed
}

// HasFailures reports whether any batch failed.
func (s Summary) HasFailures() bool {
	return s.Batches.Failed > 0
}

// ProcessAll embeds every *.json batch in cfg.InputDir whose output does not
// yet exist in cfg.OutputDir. Skipped batches make no embedding calls.
// With cfg.Workers > 1, batches run concurrently on an ants pool.
func (e *Embedder) ProcessAll(ctx context.Context, w io.Writer) (Summary, error) {
	inputs, err := batchfile.List(e.cfg.InputDir, ".json")
	if err != nil {
		return Summary{}, err
	}
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("creating output directory: %w", err)
	}

	pool, err := ants.NewPool(e.cfg.Workers)
	if err != nil {
		return Summary{}, fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		summary Summary
	)
	report := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}

	for _, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		name := batchfile.Name(in)
		out := batchfile.OutputName(in, e.cfg.OutputDir)
		if batchfile.Exists(out) {
			report(func() {
				fmt.Fprintf(w, "skipped %s\n", name)
				summary.Batches.Skipped++
			})
			continue
		}

		task := func() {
			res, err := e.ProcessFile(ctx, in, out)
			report(func() {
				summary.Embedded += res.Embedded
				summary.Dropped += res.Dropped
				summary.Degraded += res.Degraded
				if err != nil {
					fmt.Fprintf(w, "failed  %s: %v\n", name, err)
					summary.Batches.Failed++
					return
				}
				fmt.Fprintf(w, "embedded %s (%d records, %d dropped, %d degraded)\n",
					name, res.Embedded+res.Degraded, res.Dropped, res.Degraded)
				summary.Batches.Processed++
			})
		}

		wg.Add(1)
		if err := pool.Submit(func() { defer wg.Done(); task() }); err != nil {
			wg.Done()
			report(func() {
				fmt.Fprintf(w, "failed  %s: %v\n", name, err)
				summary.Batches.Failed++
			})
		}
	}
	wg.Wait()

	fmt.Fprintf(w, "\nprocessed: %d, skipped: %d, failed: %d (embedded: %d, dropped: %d, degraded: %d)\n",
		summary.Batches.Processed, summary.Batches.Skipped, summary.Batches.Failed,
		summary.Embedded, summary.Dropped, summary.Degraded)

	return summary, ctx.Err()
}
