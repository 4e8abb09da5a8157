// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the pubmed-vector pipeline:
// the bibliographic Record that flows through extract, embed and load, the
// ScoredRecord returned by queries, and per-stage configuration.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EmbeddingDim is the fixed embedding length D every stored record carries.
const EmbeddingDim = 1024

// SourcePubMed is the provenance tag written into every extracted record.
const SourcePubMed = "PubMed"

// requiredKeys lists the JSON keys a record must carry before insertion.
// Order matches the store schema.
var requiredKeys = []string{"id", "title", "abstract", "doi", "authors", "journal", "year", "source"}

// Record is one normalized bibliographic entry. It is created by the
// extractor, enriched with an embedding by the embedder, and inserted
// into the vector store. It is never mutated after insertion.
type Record struct {
	// ID is the PubMed identifier (PMID) and the store's primary key.
	ID string `json:"id"`

	Title    string `json:"title"`
	Abstract string `json:"abstract"`

	// Authors is a comma-separated list of "ForeName LastName" pairs in
	// source document order.
	Authors string `json:"authors"`

	DOI     string `json:"doi"`
	Journal string `json:"journal"`

	// Year is kept textual; source years may be partial ("2019 Jan-Feb").
	Year   string `json:"year"`
	Source string `json:"source"`

	// Embedding is absent until the embed stage has run.
	Embedding []float32 `json:"embedding,omitempty"`

	// Degraded marks a record whose embedding is a zero-vector placeholder
	// substituted after an embedding failure.
	Degraded bool `json:"degraded,omitempty"`

	// missing holds required JSON keys absent from the decoded document.
	missing []string
}

// recordJSON mirrors Record with pointer fields so key presence can be
// distinguished from an empty string.
type recordJSON struct {
	ID        *string   `json:"id"`
	PMID      *string   `json:"pmid"`
	Title     *string   `json:"title"`
	Abstract  *string   `json:"abstract"`
	Authors   *string   `json:"authors"`
	DOI       *string   `json:"doi"`
	Journal   *string   `json:"journal"`
	Year      *string   `json:"year"`
	Source    *string   `json:"source"`
	Embedding []float32 `json:"embedding"`
	Degraded  bool      `json:"degraded"`
}

// UnmarshalJSON decodes a record and remembers which required keys were
// absent. The legacy "pmid" key is accepted in place of "id".
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == nil {
		raw.ID = raw.PMID
	}

	*r = Record{Embedding: raw.Embedding, Degraded: raw.Degraded}
	fields := []struct {
		key string
		src *string
		dst *string
	}{
		{"id", raw.ID, &r.ID},
		{"title", raw.Title, &r.Title},
		{"abstract", raw.Abstract, &r.Abstract},
		{"doi", raw.DOI, &r.DOI},
		{"authors", raw.Authors, &r.Authors},
		{"journal", raw.Journal, &r.Journal},
		{"year", raw.Year, &r.Year},
		{"source", raw.Source, &r.Source},
	}
	for _, f := range fields {
		if f.src == nil {
			r.missing = append(r.missing, f.key)
			continue
		}
		*f.dst = *f.src
	}
	return nil
}

// Missing returns the required keys that were absent when the record was
// decoded. Records constructed in code report none.
func (r Record) Missing() []string {
	return r.missing
}

// EmbeddingText returns the text submitted to the embedding service:
// title and abstract joined by a space, trimmed.
func (r Record) EmbeddingText() string {
	return strings.TrimSpace(r.Title + " " + r.Abstract)
}

// WithoutEmbedding returns a copy of r with the embedding cleared.
func (r Record) WithoutEmbedding() Record {
	r.Embedding = nil
	return r
}

// Validate checks that r is fit for insertion: every required key was
// present, the id is non-empty, and the embedding has exactly dim values.
func (r Record) Validate(dim int) error {
	if len(r.missing) > 0 {
		return &ValidationError{ID: r.ID, Missing: append([]string(nil), r.missing...)}
	}
	if r.ID == "" {
		return &ValidationError{Reason: "empty id"}
	}
	if len(r.Embedding) != dim {
		return &ValidationError{
			ID:     r.ID,
			Reason: fmt.Sprintf("embedding length %d, want %d", len(r.Embedding), dim),
		}
	}
	return nil
}

// ValidationError reports a record rejected before it reaches the store.
type ValidationError struct {
	ID      string
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	id := e.ID
	if id == "" {
		id = "unknown"
	}
	if len(e.Missing) > 0 {
		return fmt.Sprintf("record %s: missing required fields: %s", id, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("record %s: %s", id, e.Reason)
}

// RequiredKeys returns the JSON keys every record must carry before insertion.
func RequiredKeys() []string {
	return append([]string(nil), requiredKeys...)
}
