// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-vector/internal/extract"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run extract, embed and load in sequence",
	Long: `Run executes the extract, embed and load stages one after another
using the configured directories. Every stage runs even if an earlier one
reported failed batches; the command exits non-zero if any stage did.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		var failed []string

		fmt.Println("== extract")
		ex, err := extract.ExtractAll(ctx, appConfig.Extract, logger, appMetrics, os.Stdout)
		if err != nil {
			return err
		}
		if ex.HasFailures() {
			failed = append(failed, "extract")
		}

		fmt.Println("\n== embed")
		em, err := embedAll(ctx)
		if err != nil {
			return err
		}
		if em.HasFailures() {
			failed = append(failed, "embed")
		}

		fmt.Println("\n== load")
		ld, err := loadAll(ctx)
		if err != nil {
			return err
		}
		if ld.HasFailures() {
			failed = append(failed, "load")
		}

		if len(failed) > 0 {
			return fmt.Errorf("stages with failed batches: %v", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
