// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed turns record text into fixed-length vectors. Client is the
// single-call primitive; Embedder drives it over record batches with the
// retry, rate and failure policies.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// Client produces one embedding per call. Implementations never retry and
// never pad or truncate: a vector of the wrong length is a *DimensionError
// and any transport or protocol failure is a *RequestError.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// RequestError reports a failed call to the embedding endpoint: a transport
// error, a timeout, a non-2xx status or an unusable response body.
type RequestError struct {
	// StatusCode is the HTTP status when the endpoint answered, else 0.
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding request failed (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// DimensionError reports a vector whose length differs from the expected
// dimension.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: got %d, want %d", e.Got, e.Want)
}

// IsRequestError reports whether err is, or wraps, a *RequestError.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// HTTPClient calls an OpenAI-compatible /embeddings endpoint.
type HTTPClient struct {
	client *openai.Client
	cfg    types.EmbeddingConfig
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for cfg.URL, which may be the API base
// ("http://host:8080/v1") or the full embeddings URL.
func NewHTTPClient(cfg types.EmbeddingConfig) (*HTTPClient, error) {
	cfg = cfg.WithDefaults()
	if cfg.URL == "" {
		return nil, errors.New("embedding URL is not configured")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = BaseURL(cfg.URL)
	oc.HTTPClient = &http.Client{Transport: userAgent{agent: cfg.UserAgent, next: http.DefaultTransport}}
	return &HTTPClient{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

// BaseURL strips a trailing "/embeddings" and slash from raw.
func BaseURL(raw string) string {
	u := strings.TrimRight(raw, "/")
	u = strings.TrimSuffix(u, "/embeddings")
	return strings.TrimRight(u, "/")
}

// Dimension returns the expected vector length.
func (c *HTTPClient) Dimension() int { return c.cfg.Dimension }

// Embed sends text (which may be empty) and validates the returned length.
// The call is bounded by the configured timeout.
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.cfg.Model),
	})
	if err != nil {
		return nil, &RequestError{StatusCode: statusOf(err), Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &RequestError{Err: errors.New("response contains no embeddings")}
	}

	vec := resp.Data[0].Embedding
	if len(vec) != c.cfg.Dimension {
		return nil, &DimensionError{Got: len(vec), Want: c.cfg.Dimension}
	}
	return vec, nil
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// userAgent sets the User-Agent header on every request.
type userAgent struct {
	agent string
	next  http.RoundTripper
}

func (u userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", u.agent)
	return u.next.RoundTrip(req)
}
