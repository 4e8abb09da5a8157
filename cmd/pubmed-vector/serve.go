// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-vector/internal/tool"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search_pubmed_vector tool over HTTP",
	Long: `Serve starts an HTTP server exposing the search tool to agents:

  POST /tools/search_pubmed_vector  {"query": "...", "top_k": 5, "score": 0.6}
  GET  /tools                       tool descriptor
  GET  /healthz                     liveness
  GET  /metrics                     Prometheus metrics

An empty query is rejected with 400; store or embedding failures return 502.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		svc, release, err := newQueryService(ctx, appConfig)
		if err != nil {
			return err
		}
		defer release()

		st := tool.NewSummaryTool(svc, appConfig.Tool)
		return tool.ListenAndServe(ctx, appConfig.Tool.Addr, tool.NewServer(st, registry, logger), logger)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8035", "listen address")
	bindFlags(serveCmd.Flags(), map[string]string{"tool.addr": "addr"})

	rootCmd.AddCommand(serveCmd)
}
