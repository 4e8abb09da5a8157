// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-vector/pkg/types"
)

func embeddingResponse(dim int) string {
	vals := make([]string, dim)
	for i := range vals {
		vals[i] = fmt.Sprintf("%g", 0.1*float64(i+1))
	}
	return `{"object":"list","model":"bge-m3","data":[{"object":"embedding","index":0,"embedding":[` +
		strings.Join(vals, ",") + `]}],"usage":{"prompt_tokens":3,"total_tokens":3}}`
}

func newTestHTTPClient(t *testing.T, h http.HandlerFunc, dim int) *HTTPClient {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := NewHTTPClient(types.EmbeddingConfig{
		URL:       ts.URL + "/v1/embeddings",
		Model:     "bge-m3",
		Dimension: dim,
		HTTPConfig: types.HTTPConfig{
			Timeout: 200 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	return c
}

func TestHTTPClientSendsExpectedRequest(t *testing.T) {
	var got map[string]any
	var path, agent string
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		agent = r.Header.Get("User-Agent")
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, embeddingResponse(4))
	}, 4)

	vec, err := c.Embed(context.Background(), "Gene therapy SMA")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.InDelta(t, 0.1, vec[0], 1e-6)

	assert.Equal(t, "/v1/embeddings", path)
	assert.Equal(t, "pubmed-vector/0.1", agent)
	assert.Equal(t, []any{"Gene therapy SMA"}, got["input"])
	assert.Equal(t, "bge-m3", got["model"])
}

func TestHTTPClientDimensionMismatch(t *testing.T) {
	for _, n := range []int{3, 5} {
		t.Run(fmt.Sprintf("len=%d", n), func(t *testing.T) {
			c := newTestHTTPClient(t, func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, embeddingResponse(n))
			}, 4)

			_, err := c.Embed(context.Background(), "x")
			var de *DimensionError
			require.True(t, errors.As(err, &de), "want DimensionError, got %v", err)
			assert.Equal(t, n, de.Got)
			assert.Equal(t, 4, de.Want)
			assert.False(t, IsRequestError(err))
		})
	}
}

func TestHTTPClientRequestErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, "boom")
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "api error body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "{not json")
			},
		},
		{
			name: "empty data",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `{"object":"list","data":[]}`)
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestHTTPClient(t, tt.handler, 4)
			_, err := c.Embed(context.Background(), "x")

			var re *RequestError
			require.True(t, errors.As(err, &re), "want RequestError, got %v", err)
			assert.Equal(t, tt.wantStatus, re.StatusCode)
		})
	}
}

func TestNewHTTPClientRequiresURL(t *testing.T) {
	_, err := NewHTTPClient(types.EmbeddingConfig{})
	assert.Error(t, err)
}

func TestBaseURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://localhost:8080/v1/embeddings", "http://localhost:8080/v1"},
		{"http://localhost:8080/v1/embeddings/", "http://localhost:8080/v1"},
		{"http://localhost:8080/v1", "http://localhost:8080/v1"},
		{"http://localhost:8080/v1/", "http://localhost:8080/v1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BaseURL(tt.in), tt.in)
	}
}
