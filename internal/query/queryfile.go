// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"fmt"
	"math"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// QueryFile is a saved query and its hits. It can be reloaded later
// without re-querying the store.
type QueryFile struct {
	Query   QueryParams          `yaml:"query"`
	Results []types.ScoredRecord `yaml:"results"`
	Summary QuerySummary         `yaml:"summary"`
}

// QueryParams stores the query in a serializable form.
type QueryParams struct {
	Text  string `yaml:"text"`
	TopK  int    `yaml:"top_k"`
	Model string `yaml:"model,omitempty"`

	// MinScore is omitted when no threshold was applied.
	MinScore *float64 `yaml:"min_score,omitempty"`
}

// QuerySummary stores result statistics and a timestamp.
type QuerySummary struct {
	Total      int       `yaml:"total"`
	Collection string    `yaml:"collection,omitempty"`
	Timestamp  time.Time `yaml:"timestamp"`
}

// NewQueryFile builds a QueryFile for a query that returned hits.
func NewQueryFile(text string, topK int, minScore float64, hits []types.ScoredRecord) QueryFile {
	qf := QueryFile{
		Query:   QueryParams{Text: text, TopK: topK},
		Results: hits,
		Summary: QuerySummary{Total: len(hits), Timestamp: time.Now().UTC()},
	}
	if !math.IsInf(minScore, -1) {
		qf.Query.MinScore = &minScore
	}
	return qf
}

// Threshold returns the stored minimum score, or NoThreshold.
func (p QueryParams) Threshold() float64 {
	if p.MinScore == nil {
		return NoThreshold
	}
	return *p.MinScore
}

// WriteQueryFile saves qf to path as YAML.
func WriteQueryFile(path string, qf QueryFile) error {
	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadQueryFile loads a previously saved query file from disk.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	return &qf, nil
}
