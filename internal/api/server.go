// Package api is the HTTP surface: queue introspection, schedule
// management and the A/B testing lifecycle. The automation cycle itself
// runs in the worker process; the API only observes and steers it.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/adpilot/internal/abtest"
	"github.com/ignite/adpilot/internal/config"
	"github.com/ignite/adpilot/internal/queue"
	"github.com/ignite/adpilot/internal/scheduler"
)

// Server serves the management API.
type Server struct {
	cfg     config.ServerConfig
	queue   *queue.Manager
	sched   *scheduler.Scheduler
	abtests *abtest.Engine
	db      *sql.DB // nil when the API runs without direct DB access
	httpSrv *http.Server
}

// NewServer creates the API server. db may be nil.
func NewServer(cfg config.ServerConfig, q *queue.Manager, sched *scheduler.Scheduler, abtests *abtest.Engine, db *sql.DB) *Server {
	return &Server{cfg: cfg, queue: q, sched: sched, abtests: abtests, db: db}
}

// Routes builds the router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/queue/stats", s.handleQueueStats)
		r.Post("/queue/jobs", s.handleEnqueue)
		r.Get("/queue/jobs/{id}", s.handleGetJob)
		r.Delete("/queue/jobs/{type}/{id}", s.handleCancelJob)

		r.Get("/scheduler/jobs", s.handleListSchedules)
		r.Post("/scheduler/jobs", s.handleAddSchedule)
		r.Delete("/scheduler/jobs/{name}", s.handleRemoveSchedule)
		r.Post("/scheduler/jobs/{name}/start", s.handleStartSchedule)
		r.Post("/scheduler/jobs/{name}/stop", s.handleStopSchedule)

		r.Post("/abtests", s.handleCreateTest)
		r.Get("/abtests", s.handleListTests)
		r.Get("/abtests/{id}/analysis", s.handleAnalyzeTest)
		r.Post("/abtests/{id}/conclude", s.handleConcludeTest)
	})

	return r
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.GetHost(), s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("[API] Listening on %s", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
