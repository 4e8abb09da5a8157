// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullRecordJSON(t *testing.T, embedding int) map[string]any {
	t.Helper()
	return map[string]any{
		"id":        "12345",
		"title":     "Gene therapy in rare disease",
		"abstract":  "",
		"authors":   "Ada Lovelace, Alan Turing",
		"doi":       "",
		"journal":   "Orphanet J Rare Dis",
		"year":      "2024",
		"source":    SourcePubMed,
		"embedding": make([]float32, embedding),
	}
}

func decodeRecord(t *testing.T, doc map[string]any) Record {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	var r Record
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func TestValidateAcceptsEmptyStrings(t *testing.T) {
	r := decodeRecord(t, fullRecordJSON(t, 4))
	assert.Empty(t, r.Missing())
	assert.NoError(t, r.Validate(4))
}

func TestValidateRejectsMissingKey(t *testing.T) {
	doc := fullRecordJSON(t, 4)
	delete(doc, "doi")
	r := decodeRecord(t, doc)

	err := r.Validate(4)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
	assert.Equal(t, "12345", verr.ID)
	assert.Equal(t, []string{"doi"}, verr.Missing)
	assert.Contains(t, err.Error(), "doi")
}

func TestValidateEmbeddingLength(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{"exact", EmbeddingDim, false},
		{"one short", EmbeddingDim - 1, true},
		{"one long", EmbeddingDim + 1, true},
		{"absent", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{ID: "1", Source: SourcePubMed, Embedding: make([]float32, tt.length)}
			err := r.Validate(EmbeddingDim)
			if tt.wantErr {
				var verr *ValidationError
				assert.True(t, errors.As(err, &verr))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEmptyID(t *testing.T) {
	r := Record{Embedding: make([]float32, 2)}
	assert.Error(t, r.Validate(2))
}

func TestUnmarshalAcceptsLegacyPMID(t *testing.T) {
	doc := fullRecordJSON(t, 0)
	delete(doc, "id")
	doc["pmid"] = "999"
	r := decodeRecord(t, doc)

	assert.Equal(t, "999", r.ID)
	assert.Empty(t, r.Missing())
}

func TestMarshalOmitsEmbeddingBeforeEmbedStage(t *testing.T) {
	r := Record{ID: "1", Title: "t", Source: SourcePubMed}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "embedding")
	assert.NotContains(t, string(data), "degraded")
	assert.Contains(t, string(data), `"doi":""`)
}

func TestEmbeddingText(t *testing.T) {
	tests := []struct {
		title, abstract, want string
	}{
		{"Title", "Abstract text", "Title Abstract text"},
		{"Title", "", "Title"},
		{"", "Abstract", "Abstract"},
		{"", "", ""},
	}
	for _, tt := range tests {
		r := Record{Title: tt.title, Abstract: tt.abstract}
		assert.Equal(t, tt.want, r.EmbeddingText())
	}
}

func TestPipelineDefaults(t *testing.T) {
	cfg := PipelineConfig{}.WithDefaults()
	assert.Equal(t, EmbeddingDim, cfg.Embedding.Dimension)
	assert.Equal(t, FailDrop, cfg.Embedding.OnFailure)
	assert.Equal(t, MaxFetchBatchSize, cfg.Fetch.FetchBatchSize)
	assert.Equal(t, BackendMilvus, cfg.Store.Backend)
	assert.Equal(t, 5, cfg.Tool.TopK)
	assert.InDelta(t, 0.6, cfg.Tool.Score, 1e-9)
	assert.Equal(t, "json_batches", cfg.Extract.OutputDir)
	assert.Equal(t, cfg.Extract.OutputDir, cfg.Embedding.InputDir)
	assert.Equal(t, cfg.Embedding.OutputDir, cfg.Store.InputDir)

	capped := FetchConfig{FetchBatchSize: 500}.WithDefaults()
	assert.Equal(t, MaxFetchBatchSize, capped.FetchBatchSize)
}
