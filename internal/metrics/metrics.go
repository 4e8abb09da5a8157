// Package metrics exposes prometheus counters for the pipeline stages and
// the query path. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Embedding and query outcomes used as label values.
const (
	OutcomeOK       = "ok"
	OutcomeDropped  = "dropped"
	OutcomeDegraded = "degraded"
	OutcomeCached   = "cached"
	OutcomeError    = "error"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	recordsExtracted  prometheus.Counter
	articlesMalformed prometheus.Counter
	embeddings        *prometheus.CounterVec
	recordsInserted   prometheus.Counter
	queries           *prometheus.CounterVec
	queryDuration     prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		recordsExtracted: f.NewCounter(prometheus.CounterOpts{
			Name: "pubmed_records_extracted_total",
			Help: "Records extracted from XML batches.",
		}),
		articlesMalformed: f.NewCounter(prometheus.CounterOpts{
			Name: "pubmed_articles_malformed_total",
			Help: "Articles skipped as malformed during extraction.",
		}),
		embeddings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pubmed_embeddings_total",
			Help: "Embedding attempts by outcome.",
		}, []string{"outcome"}),
		recordsInserted: f.NewCounter(prometheus.CounterOpts{
			Name: "pubmed_records_inserted_total",
			Help: "Records inserted into the vector store.",
		}),
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pubmed_queries_total",
			Help: "Similarity queries by outcome.",
		}, []string{"outcome"}),
		queryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pubmed_query_duration_seconds",
			Help:    "End-to-end query latency including the embedding call.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordsExtracted(n int) {
	if m == nil {
		return
	}
	m.recordsExtracted.Add(float64(n))
}

func (m *Metrics) ArticlesMalformed(n int) {
	if m == nil {
		return
	}
	m.articlesMalformed.Add(float64(n))
}

// Embedding counts one embedding attempt with the given outcome.
func (m *Metrics) Embedding(outcome string) {
	if m == nil {
		return
	}
	m.embeddings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordsInserted(n int) {
	if m == nil {
		return
	}
	m.recordsInserted.Add(float64(n))
}

// Query counts one query and observes its latency since start.
func (m *Metrics) Query(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(time.Since(start).Seconds())
}

// Handler serves the collectors registered on g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
