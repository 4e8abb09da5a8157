// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package load

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-vector/internal/batchfile"
	"github.com/pdiddy/pubmed-vector/internal/vectorstore"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

const dim = 3

// recordingStore captures Insert chunk sizes and Flush calls.
type recordingStore struct {
	chunks  []int
	flushes int
	calls   int
	failOn  int // 1-based Insert call that fails; 0 never
}

func (s *recordingStore) Insert(_ context.Context, recs []types.Record) error {
	s.calls++
	if s.calls == s.failOn {
		return &vectorstore.StoreError{Op: "insert", Err: errors.New("unavailable")}
	}
	s.chunks = append(s.chunks, len(recs))
	return nil
}

func (s *recordingStore) Flush(context.Context) error { s.flushes++; return nil }

func (s *recordingStore) Search(context.Context, []float32, int) ([]vectorstore.Hit, error) {
	return nil, nil
}

func (s *recordingStore) Close() error { return nil }

func embedded(ids ...string) []types.Record {
	recs := make([]types.Record, len(ids))
	for i, id := range ids {
		recs[i] = types.Record{ID: id, Title: "T" + id, Source: types.SourcePubMed, Embedding: []float32{1, float32(i), 0}}
	}
	return recs
}

func TestLoadFileChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_00001.json")
	require.NoError(t, batchfile.WriteRecords(path, embedded("1", "2", "3", "4", "5")))

	s := &recordingStore{}
	n, err := LoadFile(context.Background(), s, path, dim, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{2, 2, 1}, s.chunks)
}

func TestLoadFileInvalidRecordInsertsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_00001.json")
	recs := embedded("1", "2")
	recs[1].Embedding = []float32{1}
	require.NoError(t, batchfile.WriteRecords(path, recs))

	s := &recordingStore{}
	n, err := LoadFile(context.Background(), s, path, dim, 1)
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "2", verr.ID)
	assert.Zero(t, n)
	assert.Empty(t, s.chunks)
}

func TestLoadFileMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_00001.json")
	doc := `[{"id":"1","title":"","abstract":"","authors":"","journal":"","year":"","source":"PubMed","embedding":[0,0,1]}]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := LoadFile(context.Background(), &recordingStore{}, path, dim, 10)
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"doi"}, verr.Missing)
}

func TestLoadAllReportsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, batchfile.WriteRecords(filepath.Join(dir, "batch_00001.json"), embedded("1", "2")))
	bad := embedded("3")
	bad[0].Embedding = nil
	require.NoError(t, batchfile.WriteRecords(filepath.Join(dir, "batch_00002.json"), bad))
	require.NoError(t, batchfile.WriteRecords(filepath.Join(dir, "batch_00003.json"), embedded("4")))

	s := &recordingStore{}
	var buf bytes.Buffer
	summary, err := LoadAll(context.Background(), s, types.StoreConfig{InputDir: dir, Dimension: dim}, nil, nil, &buf)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Loaded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, summary.Records)
	assert.Equal(t, 3, summary.Total())
	assert.True(t, summary.HasFailures())
	assert.Equal(t, 1, s.flushes)

	out := buf.String()
	assert.Contains(t, out, "loaded batch_00001 (2 records)")
	assert.Contains(t, out, "failed  batch_00002:")
	assert.Contains(t, out, "loaded: 2, failed: 1 (records: 3)")
}

func TestLoadAllStoreErrorContinues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, batchfile.WriteRecords(filepath.Join(dir, "a.json"), embedded("1")))
	require.NoError(t, batchfile.WriteRecords(filepath.Join(dir, "b.json"), embedded("2")))

	s := &recordingStore{failOn: 1}
	var buf bytes.Buffer
	summary, err := LoadAll(context.Background(), s, types.StoreConfig{InputDir: dir, Dimension: dim}, nil, nil, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Loaded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, s.calls)
	assert.Equal(t, []int{1}, s.chunks)
	assert.Equal(t, 1, s.flushes)
	assert.Contains(t, buf.String(), "failed  a: ")
	assert.Contains(t, buf.String(), "vector store insert")
}

func TestLoadAllIntoSQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, batchfile.WriteRecords(filepath.Join(dir, "batch_00001.json"), embedded("1", "2")))
	require.NoError(t, batchfile.WriteRecords(filepath.Join(dir, "batch_00002.json"), embedded("2", "3")))

	cfg := types.StoreConfig{
		Backend:    types.BackendSQLite,
		Path:       ":memory:",
		Collection: "records",
		Dimension:  dim,
		InputDir:   dir,
	}
	store, err := vectorstore.OpenSQLite(ctx, cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	summary, err := LoadAll(ctx, store, cfg, nil, nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Records)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "id 2 appears twice and is stored once")
}

func TestLoadAllMissingInputDir(t *testing.T) {
	_, err := LoadAll(context.Background(), &recordingStore{}, types.StoreConfig{InputDir: filepath.Join(t.TempDir(), "none")}, nil, nil, &bytes.Buffer{})
	assert.Error(t, err)
}
