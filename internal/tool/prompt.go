// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tool

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// summaryPromptTmpl asks an LLM to summarize retrieved articles. The
// article block layout is a fixed contract with downstream consumers.
var summaryPromptTmpl = template.Must(template.New("summary").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`You are a medical research assistant. Based on the following PubMed articles retrieved in response to the query: "{{.Query}}", summarize the key findings, patterns, and any notable observations in 500 words or less.

Return your summary as well-structured bullet points or a concise paragraph.

### Articles:
{{range $i, $a := .Articles}}
--- Article {{inc $i}} ---
Title: {{$a.Title}}
Authors: {{$a.Authors}}
DOI: {{$a.DOI}}
Abstract: {{$a.Abstract}}
{{end}}`))

// BuildPrompt renders the summarization prompt for query over hits.
func BuildPrompt(hits []types.ScoredRecord, query string) (string, error) {
	var buf bytes.Buffer
	err := summaryPromptTmpl.Execute(&buf, struct {
		Query    string
		Articles []types.ScoredRecord
	}{query, hits})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
