// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ScoredRecord is a record returned by a similarity query. It carries every
// non-embedding field, the cosine similarity to the query, and a dense
// 1-based rank assigned after score-threshold filtering. It is never persisted
// to the vector store.
type ScoredRecord struct {
	// Rank is the 1-based position in the filtered result list.
	Rank int `json:"rank" yaml:"rank"`

	// Score is the cosine similarity between query and record, higher is closer.
	Score float64 `json:"score" yaml:"score"`

	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Abstract string `json:"abstract" yaml:"abstract"`
	Authors  string `json:"authors" yaml:"authors"`
	DOI      string `json:"doi" yaml:"doi"`
	Journal  string `json:"journal" yaml:"journal"`
	Year     string `json:"year" yaml:"year"`
	Source   string `json:"source" yaml:"source"`
}

// NewScoredRecord builds a ScoredRecord from a stored record and its score.
// Rank is left for the caller to assign.
func NewScoredRecord(r Record, score float64) ScoredRecord {
	return ScoredRecord{
		Score:    score,
		ID:       r.ID,
		Title:    r.Title,
		Abstract: r.Abstract,
		Authors:  r.Authors,
		DOI:      r.DOI,
		Journal:  r.Journal,
		Year:     r.Year,
		Source:   r.Source,
	}
}
