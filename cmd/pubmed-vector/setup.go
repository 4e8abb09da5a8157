// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-vector/internal/vectorstore"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the collection or verify its schema",
	Long: `Setup connects to the vector store and creates the collection with its
index when it does not exist. An existing collection is checked against
the expected schema (field names, types, lengths and vector dimension);
a mismatch is an error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cfg := appConfig.Store
		store, err := vectorstore.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Printf("collection %s ready (backend %s, dim %d)\n", cfg.Collection, cfg.Backend, cfg.Dimension)
		if c, ok := store.(vectorstore.Counter); ok {
			n, err := c.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("records: %d\n", n)
		}
		return nil
	},
}

func init() {
	setupCmd.Flags().Int("nlist", 128, "IVF_FLAT nlist for a new Milvus index")
	bindFlags(setupCmd.Flags(), map[string]string{"store.nlist": "nlist"})

	rootCmd.AddCommand(setupCmd)
}
