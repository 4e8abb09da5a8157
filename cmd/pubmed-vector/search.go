// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-vector/internal/query"
	"github.com/pdiddy/pubmed-vector/internal/tool"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Find the records most similar to a free-text query",
	Long: `Search embeds the query, retrieves the --top-k nearest records by cosine
similarity and keeps those scoring at least --score. Results print as a
table, or as JSON with --json.

Use --save to write the query and its results to a YAML file, and --from
to print a saved file again without querying.`,
	RunE: runSearch,
}

var promptCmd = &cobra.Command{
	Use:   "prompt [query...]",
	Short: "Print an LLM summarization prompt for a query's results",
	Long: `Prompt runs the same retrieval as search and prints a prompt asking an
LLM to summarize the retrieved articles. Pipe it to the model of your
choice.`,
	RunE: runPrompt,
}

// searchResults answers the query given on the command line, or reloads
// it from --from.
func searchResults(cmd *cobra.Command, args []string) (string, []types.ScoredRecord, error) {
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		qf, err := query.ReadQueryFile(from)
		if err != nil {
			return "", nil, err
		}
		return qf.Query.Text, qf.Results, nil
	}

	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return "", nil, errors.New("a query is required")
	}
	topK, minScore := searchParams(cmd)

	ctx, cancel := signalContext()
	defer cancel()

	svc, release, err := newQueryService(ctx, appConfig)
	if err != nil {
		return "", nil, err
	}
	defer release()

	hits, err := svc.Query(ctx, text, topK, minScore)
	if err != nil {
		return "", nil, err
	}

	if save, _ := cmd.Flags().GetString("save"); save != "" {
		qf := query.NewQueryFile(text, topK, minScore, hits)
		qf.Query.Model = appConfig.Embedding.Model
		qf.Summary.Collection = appConfig.Store.Collection
		if err := query.WriteQueryFile(save, qf); err != nil {
			return "", nil, err
		}
		fmt.Fprintf(os.Stderr, "Saved %d results to %s\n", len(hits), save)
	}
	return text, hits, nil
}

func searchParams(cmd *cobra.Command) (int, float64) {
	topK := appConfig.Tool.TopK
	if cmd.Flags().Changed("top-k") {
		topK, _ = cmd.Flags().GetInt("top-k")
	}
	minScore := appConfig.Tool.Score
	if cmd.Flags().Changed("score") {
		minScore, _ = cmd.Flags().GetFloat64("score")
	}
	if all, _ := cmd.Flags().GetBool("all"); all {
		minScore = query.NoThreshold
	}
	return topK, minScore
}

func runSearch(cmd *cobra.Command, args []string) error {
	_, hits, err := searchResults(cmd, args)
	if err != nil {
		return err
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return query.FormatJSON(hits, os.Stdout)
	}
	query.FormatTable(hits, os.Stdout)
	return nil
}

func runPrompt(cmd *cobra.Command, args []string) error {
	text, hits, err := searchResults(cmd, args)
	if err != nil {
		return err
	}
	p, err := tool.BuildPrompt(hits, text)
	if err != nil {
		return err
	}
	fmt.Println(p)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, promptCmd} {
		c.Flags().Int("top-k", 5, "number of nearest records to retrieve")
		c.Flags().Float64("score", 0.6, "minimum cosine similarity to keep")
		c.Flags().Bool("all", false, "keep every retrieved record regardless of score")
		c.Flags().String("save", "", "write the query and results to this YAML file")
		c.Flags().String("from", "", "print results from a saved YAML file instead of querying")
		rootCmd.AddCommand(c)
	}
	searchCmd.Flags().Bool("json", false, "output results as JSON")
}
