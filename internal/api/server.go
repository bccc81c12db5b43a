// Package api exposes the HTTP interface for the audit service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/seolens/siteaudit/internal/config"
	"github.com/seolens/siteaudit/internal/events"
	"github.com/seolens/siteaudit/internal/seo"
)

// CrawlRunner executes a crawl job to completion.
type CrawlRunner interface {
	Run(ctx context.Context, crawlID uuid.UUID) error
}

// Server wires HTTP handlers to the store, runner, and event broker.
type Server struct {
	router chi.Router
	store  seo.Store
	runner CrawlRunner
	broker *events.Broker
	idGen  seo.IDGenerator
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store seo.Store,
	runner CrawlRunner,
	broker *events.Broker,
	idGen seo.IDGenerator,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  store,
		runner: runner,
		broker: broker,
		idGen:  idGen,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/crawls", func(r chi.Router) {
			r.Post("/", s.startCrawl)
			r.Route("/{crawl_id}", func(r chi.Router) {
				r.Get("/", s.getCrawl)
				r.Get("/stream", s.streamCrawl)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startCrawlRequest struct {
	Domain     string `json:"domain"`
	MaxPages   *int   `json:"max_pages"`
	SitemapURL string `json:"sitemap_url"`
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req startCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Domain == "" {
		s.writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	maxPages := s.cfg.Crawler.MaxPagesDefault
	if req.MaxPages != nil && *req.MaxPages > 0 {
		maxPages = *req.MaxPages
	}

	crawlID, err := s.idGen.NewRawID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "generate crawl id")
		return
	}
	crawl := seo.Crawl{
		ID:         crawlID,
		Domain:     req.Domain,
		MaxPages:   maxPages,
		SitemapURL: req.SitemapURL,
		Status:     seo.CrawlStatusPending,
	}
	if err := s.store.CreateCrawl(r.Context(), crawl); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("create crawl: %v", err))
		return
	}

	// The crawl outlives the request.
	go func() {
		if err := s.runner.Run(context.Background(), crawlID); err != nil {
			s.logger.Error("crawl run failed",
				zap.String("crawl_id", crawlID.String()),
				zap.Error(err))
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{"crawl_id": crawlID.String()})
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	crawlID, err := uuid.Parse(chi.URLParam(r, "crawl_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid crawl id")
		return
	}
	crawl, err := s.store.GetCrawl(r.Context(), crawlID)
	if errors.Is(err, seo.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "crawl not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "load crawl")
		return
	}
	s.writeJSON(w, http.StatusOK, crawl)
}

// streamCrawl serves crawl progress as Server-Sent Events. Disconnecting
// only stops the stream; the crawl keeps running.
func (s *Server) streamCrawl(w http.ResponseWriter, r *http.Request) {
	crawlID, err := uuid.Parse(chi.URLParam(r, "crawl_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid crawl id")
		return
	}
	if _, err := s.store.GetCrawl(r.Context(), crawlID); errors.Is(err, seo.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "crawl not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broker.Subscribe(crawlID)
	defer s.broker.Unsubscribe(crawlID, ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				s.logger.Warn("marshal event failed", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
				return
			}
			flusher.Flush()
			if evt.Type == events.TypeCrawlCompleted || evt.Type == events.TypeCrawlFailed {
				return
			}
		}
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
