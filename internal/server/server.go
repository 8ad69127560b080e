// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/atlasbanco/prospect-engine/internal/enrich"
	"github.com/atlasbanco/prospect-engine/internal/monitoring"
	"github.com/atlasbanco/prospect-engine/internal/qualify"
	"github.com/atlasbanco/prospect-engine/internal/store"
)

// Server wires the engine components behind the HTTP API.
type Server struct {
	store        store.Store
	engine       *qualify.Engine
	orchestrator *enrich.Orchestrator
	collector    *monitoring.Collector
}

// New builds a Server over its dependencies. collector may be nil.
func New(st store.Store, engine *qualify.Engine, orch *enrich.Orchestrator, collector *monitoring.Collector) *Server {
	if collector == nil {
		collector = monitoring.NewCollector(nil)
	}
	return &Server{store: st, engine: engine, orchestrator: orch, collector: collector}
}

// Router assembles the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scores", s.handleScore)
		r.Route("/{kind}/candidates", func(r chi.Router) {
			r.Get("/", s.handleListCandidates)
			r.Post("/", s.handleCreateCandidate)
			r.Get("/{id}", s.handleGetCandidate)
			r.Post("/{id}/transitions", s.handleTransition)
		})
		r.Post("/{kind}/enrichment", s.handleStartEnrichment)
		r.Get("/enrichment/{id}", s.handleEnrichmentStatus)
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err := <-errCh
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
