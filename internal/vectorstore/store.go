// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vectorstore owns the record collection and its schema. Two
// backends implement Store: Milvus, with an IVF_FLAT cosine index, and a
// local SQLite table searched exactly.
package vectorstore

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// Store is an insert-only collection of embedded records.
type Store interface {
	// Insert validates every record, then writes them. An empty slice is a
	// no-op. A record with an id already present replaces it.
	Insert(ctx context.Context, recs []types.Record) error

	// Flush makes prior inserts visible to Search.
	Flush(ctx context.Context) error

	// Search returns up to topK records most similar to vec, ordered by
	// score descending and then id ascending. Degraded records, whose
	// embedding is a zero-vector placeholder, are never returned. An empty
	// store yields no hits.
	Search(ctx context.Context, vec []float32, topK int) ([]Hit, error)

	Close() error
}

// Counter is implemented by stores that can report their size.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Hit is one search result. Record carries no embedding.
type Hit struct {
	Record types.Record
	Score  float64
}

// StoreError reports a failed store operation: connect, schema, insert,
// flush or search.
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// FieldSpec is one bounded text field of the schema.
type FieldSpec struct {
	Name string

	// MaxLength is the bound in bytes.
	MaxLength int
}

// Field names, in schema order.
const (
	FieldID        = "id"
	FieldTitle     = "title"
	FieldAbstract  = "abstract"
	FieldDOI       = "doi"
	FieldAuthors   = "authors"
	FieldJournal   = "journal"
	FieldYear      = "year"
	FieldSource    = "source"
	FieldDegraded  = "degraded"
	FieldEmbedding = "embedding"
)

// Schema is the fixed collection layout shared by both backends: eight
// bounded text fields, the first being the primary key, a degraded flag,
// and one float vector of length Dim.
type Schema struct {
	Collection string
	Dim        int
	Fields     []FieldSpec
}

// NewSchema returns the record schema for collection with vectors of dim.
func NewSchema(collection string, dim int) Schema {
	return Schema{
		Collection: collection,
		Dim:        dim,
		Fields: []FieldSpec{
			{FieldID, 32},
			{FieldTitle, 512},
			{FieldAbstract, 15000},
			{FieldDOI, 128},
			{FieldAuthors, 5000},
			{FieldJournal, 512},
			{FieldYear, 10},
			{FieldSource, 64},
		},
	}
}

// TextFieldNames returns the text field names in schema order.
func (s Schema) TextFieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Fit returns r with every over-long text field truncated at a UTF-8
// boundary, and the names of the truncated fields. An id that exceeds its
// bound cannot be shortened safely and is a *types.ValidationError.
func (s Schema) Fit(r types.Record) (types.Record, []string, error) {
	var truncated []string
	for _, f := range s.Fields {
		p := field(&r, f.Name)
		if len(*p) <= f.MaxLength {
			continue
		}
		if f.Name == FieldID {
			return r, nil, &types.ValidationError{
				ID:     r.ID,
				Reason: fmt.Sprintf("id is %d bytes, limit %d", len(r.ID), f.MaxLength),
			}
		}
		*p = truncateUTF8(*p, f.MaxLength)
		truncated = append(truncated, f.Name)
	}
	return r, truncated, nil
}

// field returns a pointer to the text field called name.
func field(r *types.Record, name string) *string {
	switch name {
	case FieldID:
		return &r.ID
	case FieldTitle:
		return &r.Title
	case FieldAbstract:
		return &r.Abstract
	case FieldDOI:
		return &r.DOI
	case FieldAuthors:
		return &r.Authors
	case FieldJournal:
		return &r.Journal
	case FieldYear:
		return &r.Year
	case FieldSource:
		return &r.Source
	}
	panic("vectorstore: unknown field " + name)
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// prepare validates and fits recs for insertion. Nothing is written when
// any record fails. Later duplicates of an id replace earlier ones.
func prepare(s Schema, recs []types.Record, log *zap.Logger) ([]types.Record, error) {
	out := make([]types.Record, 0, len(recs))
	pos := make(map[string]int, len(recs))
	for _, r := range recs {
		if err := r.Validate(s.Dim); err != nil {
			return nil, err
		}
		fitted, truncated, err := s.Fit(r)
		if err != nil {
			return nil, err
		}
		if len(truncated) > 0 {
			log.Debug("truncated fields to schema bounds",
				zap.String("id", r.ID), zap.Strings("fields", truncated))
		}
		if i, ok := pos[fitted.ID]; ok {
			out[i] = fitted
			continue
		}
		pos[fitted.ID] = len(out)
		out = append(out, fitted)
	}
	return out, nil
}

// sortHits orders hits by score descending, then id ascending.
func sortHits(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Record.ID, b.Record.ID)
	})
}

var collectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,254}$`)

func checkCollectionName(name string) error {
	if !collectionName.MatchString(name) {
		return &StoreError{Op: "connect", Collection: name, Err: fmt.Errorf("invalid collection name %q", name)}
	}
	return nil
}

// Open connects to the backend selected by cfg.Backend and makes sure the
// collection exists with the expected schema.
func Open(ctx context.Context, cfg types.StoreConfig, log *zap.Logger) (Store, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Backend {
	case types.BackendMilvus:
		return OpenMilvus(ctx, cfg, log)
	case types.BackendSQLite:
		return OpenSQLite(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
