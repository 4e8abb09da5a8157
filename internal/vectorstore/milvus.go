// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/internal/logging"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// Milvus stores records in a Milvus collection with an IVF_FLAT index
// over cosine similarity. Searches run at Bounded consistency, so inserts
// become visible shortly after Flush rather than immediately.
type Milvus struct {
	client client.Client
	cfg    types.StoreConfig
	schema Schema
	log    *zap.Logger

	// mu serializes writes; reads share the client.
	mu sync.Mutex
}

var _ Store = (*Milvus)(nil)

// OpenMilvus connects to cfg.Address and ensures the collection.
func OpenMilvus(ctx context.Context, cfg types.StoreConfig, log *zap.Logger) (*Milvus, error) {
	cfg = cfg.WithDefaults()
	if err := checkCollectionName(cfg.Collection); err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	c, err := client.NewClient(cctx, client.Config{
		Address:  MilvusAddress(cfg.Address),
		DBName:   cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, &StoreError{Op: "connect", Collection: cfg.Collection, Err: err}
	}

	m := &Milvus{
		client: c,
		cfg:    cfg,
		schema: NewSchema(cfg.Collection, cfg.Dimension),
		log:    logging.OrNop(log).Named("milvus"),
	}
	if err := m.EnsureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return m, nil
}

// MilvusAddress strips an http://, https:// or tcp:// scheme and any
// trailing slash from addr.
func MilvusAddress(addr string) string {
	for _, scheme := range []string{"http://", "https://", "tcp://"} {
		addr = strings.TrimPrefix(addr, scheme)
	}
	return strings.TrimRight(addr, "/")
}

func (m *Milvus) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.Timeout)
}

// EnsureCollection creates, indexes and loads the collection when absent.
// An existing collection is checked against the schema and loaded.
func (m *Milvus) EnsureCollection(ctx context.Context) error {
	name := m.schema.Collection
	fail := func(op string, err error) error {
		return &StoreError{Op: op, Collection: name, Err: err}
	}

	cctx, cancel := m.call(ctx)
	defer cancel()

	has, err := m.client.HasCollection(cctx, name)
	if err != nil {
		return fail("connect", err)
	}

	if has {
		coll, err := m.client.DescribeCollection(cctx, name)
		if err != nil {
			return fail("schema", err)
		}
		if err := CheckSchema(m.schema, coll.Schema); err != nil {
			return fail("schema", err)
		}
	} else {
		m.log.Info("creating collection", zap.String("collection", name), zap.Int("dim", m.schema.Dim))
		if err := m.client.CreateCollection(cctx, EntitySchema(m.schema), entity.DefaultShardNumber); err != nil {
			return fail("schema", err)
		}
		idx, err := entity.NewIndexIvfFlat(entity.COSINE, m.cfg.NList)
		if err != nil {
			return fail("schema", err)
		}
		if err := m.client.CreateIndex(cctx, name, FieldEmbedding, idx, false); err != nil {
			return fail("schema", err)
		}
	}

	if err := m.client.LoadCollection(cctx, name, false); err != nil {
		return fail("connect", err)
	}
	return nil
}

// EntitySchema renders s as a Milvus collection schema.
func EntitySchema(s Schema) *entity.Schema {
	fields := make([]*entity.Field, 0, len(s.Fields)+1)
	for _, f := range s.Fields {
		fields = append(fields, &entity.Field{
			Name:       f.Name,
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: f.Name == FieldID,
			AutoID:     false,
			TypeParams: map[string]string{
				"max_length": strconv.Itoa(f.MaxLength),
			},
		})
	}
	fields = append(fields, &entity.Field{
		Name:     FieldDegraded,
		DataType: entity.FieldTypeBool,
	})
	fields = append(fields, &entity.Field{
		Name:     FieldEmbedding,
		DataType: entity.FieldTypeFloatVector,
		TypeParams: map[string]string{
			"dim": strconv.Itoa(s.Dim),
		},
	})
	return &entity.Schema{
		CollectionName: s.Collection,
		Description:    "PubMed literature records",
		Fields:         fields,
	}
}

// CheckSchema reports how got differs from want: missing or extra fields,
// a different type, primary key, max length or dimension.
func CheckSchema(want Schema, got *entity.Schema) error {
	if got == nil {
		return errors.New("collection has no schema")
	}
	byName := make(map[string]*entity.Field, len(got.Fields))
	for _, f := range got.Fields {
		byName[f.Name] = f
	}

	var problems []string
	for _, exp := range EntitySchema(want).Fields {
		f, ok := byName[exp.Name]
		if !ok {
			problems = append(problems, "missing field "+exp.Name)
			continue
		}
		delete(byName, exp.Name)
		if f.DataType != exp.DataType {
			problems = append(problems, fmt.Sprintf("%s: type %s, want %s", exp.Name, f.DataType.Name(), exp.DataType.Name()))
			continue
		}
		if f.PrimaryKey != exp.PrimaryKey {
			problems = append(problems, fmt.Sprintf("%s: primary key %t, want %t", exp.Name, f.PrimaryKey, exp.PrimaryKey))
		}
		for k, v := range exp.TypeParams {
			if f.TypeParams[k] != v {
				problems = append(problems, fmt.Sprintf("%s: %s %q, want %q", exp.Name, k, f.TypeParams[k], v))
			}
		}
	}
	for name := range byName {
		problems = append(problems, "unexpected field "+name)
	}
	if len(problems) > 0 {
		return fmt.Errorf("schema mismatch: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Insert upserts recs so that a repeated id replaces the stored record.
func (m *Milvus) Insert(ctx context.Context, recs []types.Record) error {
	if len(recs) == 0 {
		return nil
	}
	recs, err := prepare(m.schema, recs, m.log)
	if err != nil {
		return err
	}

	texts := make(map[string][]string, len(m.schema.Fields))
	degraded := make([]bool, 0, len(recs))
	vectors := make([][]float32, 0, len(recs))
	for _, r := range recs {
		for _, f := range m.schema.Fields {
			texts[f.Name] = append(texts[f.Name], *field(&r, f.Name))
		}
		degraded = append(degraded, r.Degraded)
		vectors = append(vectors, r.Embedding)
	}
	cols := make([]entity.Column, 0, len(m.schema.Fields)+2)
	for _, f := range m.schema.Fields {
		cols = append(cols, entity.NewColumnVarChar(f.Name, texts[f.Name]))
	}
	cols = append(cols,
		entity.NewColumnBool(FieldDegraded, degraded),
		entity.NewColumnFloatVector(FieldEmbedding, m.schema.Dim, vectors),
	)

	m.mu.Lock()
	defer m.mu.Unlock()
	cctx, cancel := m.call(ctx)
	defer cancel()
	if _, err := m.client.Upsert(cctx, m.schema.Collection, "", cols...); err != nil {
		return &StoreError{Op: "insert", Collection: m.schema.Collection, Err: err}
	}
	return nil
}

// Flush seals pending segments so inserted records become searchable.
func (m *Milvus) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cctx, cancel := m.call(ctx)
	defer cancel()
	if err := m.client.Flush(cctx, m.schema.Collection, false); err != nil {
		return &StoreError{Op: "flush", Collection: m.schema.Collection, Err: err}
	}
	return nil
}

// Search runs an approximate cosine search probing cfg.NProbe partitions.
// Degraded records are filtered out by the search expression.
func (m *Milvus) Search(ctx context.Context, vec []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	fail := func(err error) error {
		return &StoreError{Op: "search", Collection: m.schema.Collection, Err: err}
	}
	if len(vec) != m.schema.Dim {
		return nil, fail(fmt.Errorf("query vector length %d, want %d", len(vec), m.schema.Dim))
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(m.cfg.NProbe)
	if err != nil {
		return nil, fail(err)
	}

	cctx, cancel := m.call(ctx)
	defer cancel()
	results, err := m.client.Search(
		cctx,
		m.schema.Collection,
		[]string{},
		FieldDegraded+" == false",
		m.schema.TextFieldNames(),
		[]entity.Vector{entity.FloatVector(vec)},
		FieldEmbedding,
		entity.COSINE,
		topK,
		sp,
		client.WithSearchQueryConsistencyLevel(entity.ClBounded),
	)
	if err != nil {
		return nil, fail(err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	if results[0].Err != nil {
		return nil, fail(results[0].Err)
	}
	hits := m.hits(results[0])
	sortHits(hits)
	return hits, nil
}

func (m *Milvus) hits(res client.SearchResult) []Hit {
	if res.ResultCount == 0 {
		return nil
	}
	columns := make(map[string][]string, len(m.schema.Fields))
	for _, col := range res.Fields {
		if vc, ok := col.(*entity.ColumnVarChar); ok {
			columns[col.Name()] = vc.Data()
		}
	}
	if _, ok := columns[FieldID]; !ok {
		if ids, ok := res.IDs.(*entity.ColumnVarChar); ok {
			columns[FieldID] = ids.Data()
		}
	}

	hits := make([]Hit, 0, res.ResultCount)
	for i := 0; i < res.ResultCount; i++ {
		var h Hit
		for _, f := range m.schema.Fields {
			if vals := columns[f.Name]; i < len(vals) {
				*field(&h.Record, f.Name) = vals[i]
			}
		}
		if i < len(res.Scores) {
			h.Score = float64(res.Scores[i])
		}
		hits = append(hits, h)
	}
	return hits
}

// Count returns the collection's row count as reported by Milvus.
func (m *Milvus) Count(ctx context.Context) (int, error) {
	cctx, cancel := m.call(ctx)
	defer cancel()
	stats, err := m.client.GetCollectionStatistics(cctx, m.schema.Collection)
	if err != nil {
		return 0, &StoreError{Op: "search", Collection: m.schema.Collection, Err: err}
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, &StoreError{Op: "search", Collection: m.schema.Collection, Err: fmt.Errorf("row_count %q: %w", stats["row_count"], err)}
	}
	return n, nil
}

// Close releases the connection.
func (m *Milvus) Close() error {
	return m.client.Close()
}
