// Package api exposes the HTTP interface for the search service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/intellsearch/intell/internal/frontier"
	"github.com/intellsearch/intell/internal/metrics"
	"github.com/intellsearch/intell/internal/query"
	"github.com/intellsearch/intell/internal/search"
	"github.com/intellsearch/intell/internal/search/urlutil"
	"github.com/intellsearch/intell/internal/trend"
)

// Searcher executes search and suggest requests.
type Searcher interface {
	Search(ctx context.Context, req query.Request) (search.ResultPage, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
}

// Trender reports the currently trending query terms.
type Trender interface {
	TopTrending(k int) []trend.TermScore
}

// Crawler is the slice of the frontier the API needs.
type Crawler interface {
	Counts() search.CrawlCounts
	Enqueue(ctx context.Context, rawURL string, depth int) error
	Requeue(ctx context.Context, normalizedURL string) error
}

// HealthChecker probes the document store.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// Server wires HTTP handlers to the query engine, trend tracker, and
// frontier.
type Server struct {
	router   chi.Router
	searcher Searcher
	trender  Trender
	crawler  Crawler
	health   HealthChecker
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	searcher Searcher,
	trender Trender,
	crawler Crawler,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		searcher: searcher,
		trender:  trender,
		crawler:  crawler,
		health:   health,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/search", s.searchHandler)
	r.Get("/suggest", s.suggestHandler)
	r.Get("/trending", s.trendingHandler)
	r.Route("/crawl", func(r chi.Router) {
		r.Get("/status", s.crawlStatus)
		r.Post("/seeds", s.submitSeeds)
		r.Post("/requeue", s.requeueURL)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Healthy(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "document store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := query.Request{
		Term:     q.Get("q"),
		Size:     intParam(q.Get("size"), 0),
		Cursor:   q.Get("cursor"),
		SafeOnly: boolParam(q.Get("safe"), true),
	}
	page, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}
	metrics.ObserveQuery("ok")
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) suggestHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	suggestions, err := s.searcher.Suggest(r.Context(), q.Get("q"), intParam(q.Get("limit"), 8))
	if err != nil {
		s.writeSearchError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) trendingHandler(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query().Get("limit"), 10)
	top := s.trender.TopTrending(limit)
	if top == nil {
		top = []trend.TermScore{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trending": top})
}

func (s *Server) crawlStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.crawler.Counts())
}

type seedsRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) submitSeeds(w http.ResponseWriter, r *http.Request) {
	var req seedsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one URL required")
		return
	}
	accepted := 0
	for _, raw := range req.URLs {
		if err := s.crawler.Enqueue(r.Context(), raw, 0); err != nil {
			s.logger.Warn("seed rejected", zap.String("url", raw), zap.Error(err))
			continue
		}
		accepted++
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

type requeueRequest struct {
	URL string `json:"url"`
}

// requeueURL returns a terminally failed URL to the crawl queue.
func (s *Server) requeueURL(w http.ResponseWriter, r *http.Request) {
	var req requeueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	normalized, err := urlutil.Normalize(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	if err := s.crawler.Requeue(r.Context(), normalized); err != nil {
		if errors.Is(err, frontier.ErrNotKnown) {
			writeError(w, http.StatusNotFound, "url not known")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"url": normalized, "state": string(search.StatePending)})
}

// writeSearchError maps engine errors onto HTTP statuses: invalid input
// is the client's fault, an unreachable store is ours.
func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	var verr *search.ValidationError
	if errors.As(err, &verr) {
		metrics.ObserveQuery("invalid")
		writeError(w, http.StatusBadRequest, verr.Msg)
		return
	}
	if errors.Is(err, search.ErrStoreUnavailable) {
		metrics.ObserveQuery("unavailable")
		writeError(w, http.StatusServiceUnavailable, "search backend unavailable")
		return
	}
	metrics.ObserveQuery("error")
	s.logger.Error("search request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func boolParam(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
