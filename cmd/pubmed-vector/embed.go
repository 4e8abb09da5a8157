// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-vector/internal/embed"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Attach embeddings to extracted JSON batches",
	Long: `Embed sends each record's title and abstract to the embedding endpoint
and writes the embedded batch to json_embedded/. Batches already present
in the output directory are skipped without any embedding calls.

Records whose embedding fails after retries are dropped, or kept with a
zero vector and "degraded": true when --on-failure=zero-vector.`,
	RunE: runEmbed,
}

func runEmbed(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	summary, err := embedAll(ctx)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d batch(es) failed embedding", summary.Batches.Failed)
	}
	return nil
}

// embedAll embeds every pending batch with the configured client.
func embedAll(ctx context.Context) (embed.Summary, error) {
	cfg := appConfig.Embedding
	switch cfg.OnFailure {
	case types.FailDrop, types.FailZeroVector:
	default:
		return embed.Summary{}, fmt.Errorf("unknown failure policy %q: use %s or %s", cfg.OnFailure, types.FailDrop, types.FailZeroVector)
	}

	client, release, err := newEmbeddingClient(cfg)
	if err != nil {
		return embed.Summary{}, err
	}
	defer release()

	return embed.NewEmbedder(client, cfg, logger, appMetrics).ProcessAll(ctx, os.Stdout)
}

func init() {
	f := embedCmd.Flags()
	f.String("input-dir", "json_batches", "directory of extracted JSON batches")
	f.String("output-dir", "json_embedded", "directory for embedded batches")
	f.Int("workers", 1, "batches embedded concurrently")
	f.Duration("delay", 0, "minimum spacing between embedding calls")
	f.String("on-failure", "drop", "per-record failure policy: drop or zero-vector")
	f.String("cache-dir", "", "badger directory for the embedding cache (disabled when empty)")
	bindFlags(f, map[string]string{
		"embedding.input_dir":  "input-dir",
		"embedding.output_dir": "output-dir",
		"embedding.workers":    "workers",
		"embedding.delay":      "delay",
		"embedding.on_failure": "on-failure",
		"embedding.cache_dir":  "cache-dir",
	})

	rootCmd.AddCommand(embedCmd)
}
