// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/internal/embed"
	"github.com/pdiddy/pubmed-vector/internal/query"
	"github.com/pdiddy/pubmed-vector/internal/vectorstore"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// newEmbeddingClient builds the HTTP embedding client, wrapped in the
// badger cache when cfg.CacheDir is set. The returned func releases the
// cache.
func newEmbeddingClient(cfg types.EmbeddingConfig) (embed.Client, func(), error) {
	hc, err := embed.NewHTTPClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.CacheDir == "" {
		return hc, func() {}, nil
	}
	db, err := embed.OpenCache(cfg.CacheDir, logger)
	if err != nil {
		return nil, nil, err
	}
	closeCache := func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing embedding cache", zap.Error(err))
		}
	}
	return embed.NewCachedClient(hc, db, cfg.Model, logger), closeCache, nil
}

// newQueryService opens the store and the embedding client for querying.
// The returned func releases both.
func newQueryService(ctx context.Context, cfg types.PipelineConfig) (*query.Service, func(), error) {
	client, closeClient, err := newEmbeddingClient(cfg.Embedding)
	if err != nil {
		return nil, nil, err
	}
	store, err := vectorstore.Open(ctx, cfg.Store, logger)
	if err != nil {
		closeClient()
		return nil, nil, err
	}
	release := func() {
		store.Close()
		closeClient()
	}
	return query.NewService(client, store, logger, appMetrics), release, nil
}
