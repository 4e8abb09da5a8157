// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// FormatTable writes hits as a human-readable table to w.
func FormatTable(hits []types.ScoredRecord, w io.Writer) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-6s  %-10s  %-60s  %-20s  %s\n",
		"Rank", "Score", "ID", "Title", "Journal", "Year")
	fmt.Fprintln(w, strings.Repeat("-", 112))

	for _, h := range hits {
		fmt.Fprintf(w, "%-4d  %-6.3f  %-10s  %-60s  %-20s  %s\n",
			h.Rank, h.Score, h.ID, truncate(h.Title, 60), truncate(h.Journal, 20), h.Year)
	}

	fmt.Fprintf(w, "\n%d results\n", len(hits))
}

// FormatJSON writes hits as indented JSON to w.
func FormatJSON(hits []types.ScoredRecord, w io.Writer) error {
	if hits == nil {
		hits = []types.ScoredRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(hits)
}

// truncate shortens s to at most max runes, ending in "...".
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
