// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/internal/logging"
	"github.com/pdiddy/pubmed-vector/internal/metrics"
)

const maxBodyBytes = 1 << 20

// Descriptor advertises the tool to agents on GET /tools.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolDescriptor returns the descriptor for the search tool with its
// default top_k and score.
func ToolDescriptor(topK int, score float64) Descriptor {
	return Descriptor{
		Name:        Name,
		Description: "Search the local PubMed vector database for literature on a disease, drug, symptom or gene.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Free-text search query."},
				"top_k": map[string]any{"type": "integer", "default": topK, "minimum": 0},
				"score": map[string]any{"type": "number", "default": score},
			},
		},
	}
}

// problem is an RFC 7807 error body.
type problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// NewServer routes the tool endpoints. A nil gatherer leaves /metrics
// unmounted.
func NewServer(t *SummaryTool, gatherer prometheus.Gatherer, log *zap.Logger) http.Handler {
	log = logging.OrNop(log).Named("server")
	h := &handler{tool: t, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/tools", h.list)
	r.Post("/tools/"+Name, h.search)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}
	return r
}

type handler struct {
	tool *SummaryTool
	log  *zap.Logger
}

func (h *handler) list(w http.ResponseWriter, _ *http.Request) {
	d := ToolDescriptor(h.tool.defaults.TopK, h.tool.defaults.Score)
	respondJSON(w, http.StatusOK, []Descriptor{d})
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := h.tool.Search(r.Context(), req)
	switch {
	case errors.Is(err, ErrEmptyQuery), errors.Is(err, ErrNegativeTopK):
		respondError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case err != nil:
		h.log.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		respondError(w, http.StatusBadGateway, "Bad Gateway", err.Error())
	default:
		respondJSON(w, http.StatusOK, resp)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func respondError(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// ListenAndServe serves handler on addr until ctx ends, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	log = logging.OrNop(log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("tool server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log.Info("shutting down tool server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
