// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tool exposes similarity search as an agent-callable tool: a
// structured hit list plus a plain-text digest, served over HTTP.
package tool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// Name is the tool's registered name.
const Name = "search_pubmed_vector"

// Source tags every response's metadata.
const Source = "local_pubmed_vector_db"

var (
	// ErrEmptyQuery is returned for an empty or whitespace-only query.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrNegativeTopK is returned when top_k is below zero.
	ErrNegativeTopK = errors.New("top_k must not be negative")
)

// Querier answers similarity queries. *query.Service implements it.
type Querier interface {
	Query(ctx context.Context, text string, topK int, minScore float64) ([]types.ScoredRecord, error)
}

// Request is one tool invocation. Nil TopK and Score take the tool's
// defaults.
type Request struct {
	Query string   `json:"query"`
	TopK  *int     `json:"top_k,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// Hit is one entry of Response.Result.
type Hit struct {
	Rank     int     `json:"rank"`
	Score    float64 `json:"score"`
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Abstract string  `json:"abstract"`
}

// Metadata describes how a response was produced.
type Metadata struct {
	Source      string    `json:"source"`
	RetrievedAt time.Time `json:"retrieved_at"`
	TopK        int       `json:"top_k"`
	Tool        string    `json:"tool"`
}

// Response is the tool's result.
type Response struct {
	Query    string   `json:"query"`
	Result   []Hit    `json:"result"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// SummaryTool wraps a Querier with request defaults and digest rendering.
type SummaryTool struct {
	querier  Querier
	defaults types.ToolConfig
	now      func() time.Time
}

// NewSummaryTool returns a SummaryTool over q using cfg's TopK and Score
// defaults.
func NewSummaryTool(q Querier, cfg types.ToolConfig) *SummaryTool {
	return &SummaryTool{querier: q, defaults: cfg.WithDefaults(), now: time.Now}
}

// Search runs req and builds the response.
func (t *SummaryTool) Search(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Response{}, ErrEmptyQuery
	}
	topK := t.defaults.TopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK < 0 {
		return Response{}, ErrNegativeTopK
	}
	score := t.defaults.Score
	if req.Score != nil {
		score = *req.Score
	}

	hits, err := t.querier.Query(ctx, req.Query, topK, score)
	if err != nil {
		return Response{}, fmt.Errorf("literature search failed: %w", err)
	}

	result := make([]Hit, len(hits))
	for i, h := range hits {
		result[i] = Hit{
			Rank:     h.Rank,
			Score:    math.Round(h.Score*1000) / 1000,
			ID:       h.ID,
			Title:    h.Title,
			Abstract: h.Abstract,
		}
	}
	return Response{
		Query:  req.Query,
		Result: result,
		Text:   BuildDigest(req.Query, hits),
		Metadata: Metadata{
			Source:      Source,
			RetrievedAt: t.now().UTC(),
			TopK:        topK,
			Tool:        Name,
		},
	}, nil
}

// BuildDigest renders hits as numbered plain text under a query header.
// The abstract line is left out for hits without an abstract.
func BuildDigest(query string, hits []types.ScoredRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\n", query)
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %q\n", i+1, h.Title)
		fmt.Fprintf(&b, "   ID: %s\n", h.ID)
		if h.Abstract != "" {
			fmt.Fprintf(&b, "   Abstract: %s\n", h.Abstract)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
