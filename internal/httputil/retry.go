// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the retry policy shared by every stage that
// performs remote I/O: the PubMed source client and the batch embedder.
package httputil

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// RetryBaseDelay is the default first backoff delay. Tests override this
// to avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

const defaultMaxAttempts = 3

// Policy decides how many times a remote call is tried and how long to
// wait between tries. The zero value tries once.
type Policy struct {
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts int

	// Backoff returns the wait before retry number attempt (1-based).
	Backoff func(attempt int) time.Duration
}

// ExponentialBackoff returns a backoff that starts at base and doubles on
// each retry: base, 2*base, 4*base, ...
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(math.Pow(2, float64(attempt-1))) * base
	}
}

// NewPolicy builds a Policy from config, falling back to RetryBaseDelay
// when the config leaves the delay unset.
func NewPolicy(cfg types.RetryConfig) Policy {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	base := cfg.BaseDelay
	if base <= 0 {
		base = RetryBaseDelay
	}
	return Policy{MaxAttempts: attempts, Backoff: ExponentialBackoff(base)}
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) wait(ctx context.Context, attempt int) error {
	if p.Backoff == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.Backoff(attempt)):
		return nil
	}
}

// Do calls fn until it succeeds, returns an error for which retryable
// reports false, or the attempts are exhausted. A nil retryable retries
// every error. The last error is returned. If the context is cancelled
// during a backoff wait, Do returns ctx.Err().
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, retryable func(error) bool) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt >= p.attempts() {
			return err
		}
		if werr := p.wait(ctx, attempt); werr != nil {
			return errors.Join(err, werr)
		}
	}
}

// retryableStatus reports whether an HTTP status is worth another try:
// 429 Too Many Requests and any 5xx.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// DoWithRetry executes an HTTP request under policy p. It retries on
// transport errors, HTTP 429 and 5xx responses. On a retried response the
// body is drained and closed before waiting. After exhausting attempts the
// last response (or transport error) is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, p Policy) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		last := attempt >= p.attempts()

		if err != nil {
			if last || ctx.Err() != nil {
				return nil, err
			}
		} else {
			if !retryableStatus(resp.StatusCode) || last {
				return resp, nil
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if werr := p.wait(ctx, attempt); werr != nil {
			return nil, werr
		}
	}
}
