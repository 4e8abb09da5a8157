// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query answers similarity queries: it embeds the query text,
// searches the vector store and filters the hits by score.
package query

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/internal/embed"
	"github.com/pdiddy/pubmed-vector/internal/logging"
	"github.com/pdiddy/pubmed-vector/internal/metrics"
	"github.com/pdiddy/pubmed-vector/internal/vectorstore"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// NoThreshold keeps every hit regardless of score.
var NoThreshold = math.Inf(-1)

// Service is safe for concurrent use when its client and store are.
type Service struct {
	client  embed.Client
	store   vectorstore.Store
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewService returns a Service that embeds with client and searches store.
func NewService(client embed.Client, store vectorstore.Store, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		client:  client,
		store:   store,
		log:     logging.OrNop(log).Named("query"),
		metrics: m,
	}
}

// Query returns up to topK records whose similarity to text is at least
// minScore, best first, ranked 1..n. Degraded records never appear: their
// zero-vector placeholder carries no similarity signal. A topK of zero
// returns an empty result without calling the embedding service or the
// store.
func (s *Service) Query(ctx context.Context, text string, topK int, minScore float64) ([]types.ScoredRecord, error) {
	if topK < 0 {
		return nil, fmt.Errorf("top_k must not be negative, got %d", topK)
	}
	if topK == 0 {
		return []types.ScoredRecord{}, nil
	}
	start := time.Now()

	vec, err := s.client.Embed(ctx, text)
	if err != nil {
		s.metrics.Query(metrics.OutcomeError, start)
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.store.Search(ctx, vec, topK)
	if err != nil {
		s.metrics.Query(metrics.OutcomeError, start)
		return nil, fmt.Errorf("searching: %w", err)
	}

	out := make([]types.ScoredRecord, 0, len(hits))
	var degraded int
	for _, h := range hits {
		if h.Record.Degraded {
			degraded++
			continue
		}
		if h.Score < minScore {
			continue
		}
		sr := types.NewScoredRecord(h.Record, h.Score)
		sr.Rank = len(out) + 1
		out = append(out, sr)
	}

	s.log.Debug("query answered",
		zap.Int("top_k", topK),
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(out)),
		zap.Int("degraded", degraded),
		zap.Duration("took", time.Since(start)))
	s.metrics.Query(metrics.OutcomeOK, start)
	return out, nil
}
