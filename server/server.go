// Package server exposes the processed and features artifacts over HTTP.
// All dataset reads go through the artifact caches; the only write path is
// the data-process endpoint, which runs the pipeline.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-pipeline/config"
	"github.com/aluiziolira/go-books-pipeline/dataset"
	"github.com/aluiziolira/go-books-pipeline/history"
	"github.com/aluiziolira/go-books-pipeline/mldata"
	"github.com/aluiziolira/go-books-pipeline/models"
	"github.com/aluiziolira/go-books-pipeline/pipeline"
	"github.com/aluiziolira/go-books-pipeline/stats"
)

// Server wires the HTTP API over the dataset services and the pipeline
// runner.
type Server struct {
	cfg     config.Config
	router  chi.Router
	books   *dataset.Cache[[]models.Book]
	stats   *stats.Service
	mldata  *mldata.Service
	runner  *pipeline.Runner
	history *history.Store

	// running guards the single in-flight pipeline run.
	running atomic.Bool
}

// New builds the server and its routes. history may be nil, in which case
// runs are not recorded and the runs endpoint reports an empty list.
func New(cfg config.Config, runner *pipeline.Runner, hist *history.Store, gatherers ...prometheus.Gatherer) *Server {
	booksCache := dataset.NewCache(dataset.ReadProcessed)
	featuresCache := dataset.NewCache(dataset.ReadFeatures)

	s := &Server{
		cfg:     cfg,
		books:   booksCache,
		stats:   stats.NewService(booksCache, cfg.Pipeline.ProcessedOutput),
		mldata:  mldata.NewService(featuresCache, cfg.Pipeline.FeaturesOutput),
		runner:  runner,
		history: hist,
	}
	s.router = s.routes(gatherers)
	return s
}

// Handler returns the root HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening", zap.String("addr", s.cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) routes(gatherers []prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if len(gatherers) > 0 {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			prometheus.Gatherers(gatherers),
			promhttp.HandlerOpts{},
		))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/books", s.handleListBooks)
		r.Get("/books/search", s.handleSearchBooks)
		r.Get("/books/top-rated", s.handleTopRated)
		r.Get("/books/price-range", s.handlePriceRange)
		r.Get("/books/{id}", s.handleGetBook)
		r.Get("/categories", s.handleCategories)
		r.Get("/stats/overview", s.handleStatsOverview)
		r.Get("/stats/categories", s.handleStatsCategories)
		r.Get("/ml/features", s.handleFeatures)
		r.Get("/ml/training-data", s.handleTrainingData)
		r.Post("/data-process", s.handleDataProcess)
		r.Get("/runs", s.handleRuns)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
