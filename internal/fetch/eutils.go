// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads PubMed article XML from the NCBI E-utilities API
// into numbered batch files for the extract stage.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/pubmed-vector/internal/httputil"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// eutilsBase is the E-utilities root. Declared as a var so tests can
// substitute an httptest server.
var eutilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// toolName identifies this client to NCBI.
const toolName = "pubmed-vector"

// NCBI request ceilings per second.
const (
	rateAnonymous = 3
	rateWithKey   = 10
)

// esearchWindow is the number of ids esearch will page through. Ids past
// it are read from the history server with efetch.
const esearchWindow = 9999

// Client talks to esearch and efetch under the NCBI rate limit. Every
// HTTP attempt, retries included, waits for the limiter.
type Client struct {
	HTTP    *http.Client
	cfg     types.FetchConfig
	limiter *rate.Limiter
	retry   httputil.Policy
}

// NewClient returns a Client for cfg. The request rate is 3/s, or 10/s
// when an API key is configured.
func NewClient(cfg types.FetchConfig) *Client {
	cfg = cfg.WithDefaults()
	perSec := rateAnonymous
	if cfg.APIKey != "" {
		perSec = rateWithKey
	}
	limiter := rate.NewLimiter(rate.Limit(perSec), 1)
	return &Client{
		HTTP: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: limitedTransport{next: http.DefaultTransport, limiter: limiter},
		},
		cfg:     cfg,
		limiter: limiter,
		retry:   httputil.NewPolicy(cfg.Retry),
	}
}

// limitedTransport waits for the limiter before each round trip.
type limitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// esearchResponse is the JSON envelope returned by esearch.fcgi. Paging
// errors such as a retstart past the window arrive in Result.Error.
type esearchResponse struct {
	Result struct {
		Count    string   `json:"count"`
		RetStart string   `json:"retstart"`
		IDList   []string `json:"idlist"`
		WebEnv   string   `json:"webenv"`
		QueryKey string   `json:"querykey"`
		Error    string   `json:"ERROR,omitempty"`
	} `json:"esearchresult"`
	Error string `json:"error,omitempty"`
}

// SearchResult holds the drained id list of one esearch query.
type SearchResult struct {
	Count    int
	IDs      []string
	WebEnv   string
	QueryKey string
}

// SearchIDs runs the configured query and pages through every matching
// PMID, PageSize ids at a time, on the same history server session. The
// first esearchWindow ids come from esearch and the rest from efetch on
// the stored history. A page that comes back empty before Count ids have
// been read is an error.
func (c *Client) SearchIDs(ctx context.Context) (SearchResult, error) {
	if strings.TrimSpace(c.cfg.Query) == "" {
		return SearchResult{}, fmt.Errorf("empty PubMed query")
	}

	first, err := c.esearch(ctx, 0, c.cfg.PageSize, SearchResult{})
	if err != nil {
		return SearchResult{}, fmt.Errorf("esearch at 0: %w", err)
	}
	n, err := strconv.Atoi(first.Result.Count)
	if err != nil {
		return SearchResult{}, fmt.Errorf("esearch count %q: %w", first.Result.Count, err)
	}
	res := SearchResult{
		Count:    n,
		IDs:      first.Result.IDList,
		WebEnv:   first.Result.WebEnv,
		QueryKey: first.Result.QueryKey,
	}

	if len(res.IDs) == 0 && res.Count > 0 {
		return res, fmt.Errorf("esearch returned no ids of %d", res.Count)
	}
	for start := len(res.IDs); start < res.Count; {
		var page []string
		if start < esearchWindow {
			resp, err := c.esearch(ctx, start, min(c.cfg.PageSize, esearchWindow-start), res)
			if err != nil {
				return res, fmt.Errorf("esearch at %d: %w", start, err)
			}
			page = resp.Result.IDList
		} else {
			page, err = c.historyIDs(ctx, start, res)
			if err != nil {
				return res, fmt.Errorf("efetch ids at %d: %w", start, err)
			}
		}
		if len(page) == 0 {
			return res, fmt.Errorf("no ids at %d, %d of %d read", start, len(res.IDs), res.Count)
		}
		res.IDs = append(res.IDs, page...)
		start += len(page)
	}
	return res, nil
}

// esearch requests one page. Pages after the first reuse the session's
// WebEnv and query_key.
func (c *Client) esearch(ctx context.Context, start, retmax int, session SearchResult) (esearchResponse, error) {
	q := c.baseParams()
	q.Set("term", c.cfg.Query)
	q.Set("usehistory", "y")
	q.Set("retmode", "json")
	q.Set("retstart", strconv.Itoa(start))
	q.Set("retmax", strconv.Itoa(retmax))
	if c.cfg.RelDays > 0 {
		q.Set("reldate", strconv.Itoa(c.cfg.RelDays))
		q.Set("datetype", "pdat")
	} else if c.cfg.MinDate != "" || c.cfg.MaxDate != "" {
		q.Set("datetype", "pdat")
		q.Set("mindate", c.cfg.MinDate)
		q.Set("maxdate", c.cfg.MaxDate)
	}
	if session.WebEnv != "" {
		q.Set("WebEnv", session.WebEnv)
	}
	if session.QueryKey != "" {
		q.Set("query_key", session.QueryKey)
	}

	body, err := c.get(ctx, "esearch.fcgi", q)
	if err != nil {
		return esearchResponse{}, err
	}
	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return esearchResponse{}, fmt.Errorf("parsing esearch response: %w", err)
	}
	if resp.Error != "" {
		return esearchResponse{}, fmt.Errorf("esearch: %s", resp.Error)
	}
	if resp.Result.Error != "" {
		return esearchResponse{}, fmt.Errorf("esearch: %s", resp.Result.Error)
	}
	return resp, nil
}

// historyIDs reads one page of PMIDs from the history server as a plain
// uilist, which has no esearch window.
func (c *Client) historyIDs(ctx context.Context, start int, session SearchResult) ([]string, error) {
	if session.WebEnv == "" || session.QueryKey == "" {
		return nil, fmt.Errorf("no history session for %d results", session.Count)
	}
	q := c.baseParams()
	q.Set("WebEnv", session.WebEnv)
	q.Set("query_key", session.QueryKey)
	q.Set("retstart", strconv.Itoa(start))
	q.Set("retmax", strconv.Itoa(c.cfg.PageSize))
	q.Set("rettype", "uilist")
	q.Set("retmode", "text")

	body, err := c.get(ctx, "efetch.fcgi", q)
	if err != nil {
		return nil, err
	}
	ids := strings.Fields(string(body))
	for _, id := range ids {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return nil, fmt.Errorf("unexpected uilist entry %.64q", id)
		}
	}
	return ids, nil
}

// FetchXML returns the PubmedArticleSet document for ids. At most
// MaxFetchBatchSize ids are accepted per call.
func (c *Client) FetchXML(ctx context.Context, ids []string) ([]byte, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("efetch: no ids")
	}
	if len(ids) > types.MaxFetchBatchSize {
		return nil, fmt.Errorf("efetch: %d ids exceeds limit of %d", len(ids), types.MaxFetchBatchSize)
	}
	q := c.baseParams()
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")
	return c.get(ctx, "efetch.fcgi", q)
}

func (c *Client) baseParams() url.Values {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("tool", toolName)
	if c.cfg.Email != "" {
		q.Set("email", c.cfg.Email)
	}
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	return q
}

// get issues the request with retries. The transport applies the rate limit.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	u := eutilsBase + "/" + endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, c.HTTP, req, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned HTTP %d", endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", endpoint, err)
	}
	return body, nil
}
