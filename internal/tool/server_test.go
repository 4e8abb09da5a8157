// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tool

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-vector/internal/metrics"
)

func newTestServer(t *testing.T, q Querier) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Query(metrics.OutcomeOK, time.Now())
	ts := httptest.NewServer(NewServer(fixedTool(q), reg, nil))
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/tools/"+Name, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServerSearch(t *testing.T) {
	q := &fakeQuerier{hits: twoHits()}
	ts := newTestServer(t, q)

	resp := post(t, ts, `{"query":"sma","top_k":2,"score":0.5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "sma", got.Query)
	assert.Len(t, got.Result, 2)
	assert.Equal(t, 2, got.Metadata.TopK)
	assert.Equal(t, Name, got.Metadata.Tool)
	assert.Equal(t, 2, q.topK)
	assert.InDelta(t, 0.5, q.minScore, 1e-9)
}

func TestServerEmptyQueryIs400(t *testing.T) {
	q := &fakeQuerier{}
	ts := newTestServer(t, q)

	resp := post(t, ts, `{"query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	var p problem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Contains(t, p.Detail, "empty")
	assert.Zero(t, q.calls)
}

func TestServerBadBody(t *testing.T) {
	ts := newTestServer(t, &fakeQuerier{})
	for _, body := range []string{`not json`, `{"query":"q","unknown":1}`, `{"query":"q","top_k":"five"}`} {
		resp := post(t, ts, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestServerBackendFailureIs502(t *testing.T) {
	ts := newTestServer(t, &fakeQuerier{err: errors.New("milvus down")})
	resp := post(t, ts, `{"query":"q"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestServerListsTools(t *testing.T) {
	ts := newTestServer(t, &fakeQuerier{})
	resp, err := http.Get(ts.URL + "/tools")
	require.NoError(t, err)
	defer resp.Body.Close()

	var ds []Descriptor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ds))
	require.Len(t, ds, 1)
	assert.Equal(t, Name, ds[0].Name)
	assert.Contains(t, ds[0].Parameters, "properties")
}

func TestServerHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, &fakeQuerier{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pubmed_queries_total")
}

func TestServerWithoutMetrics(t *testing.T) {
	ts := httptest.NewServer(NewServer(fixedTool(&fakeQuerier{}), nil, nil))
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
