// Package server exposes the session orchestration engine over HTTP.
package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/thebtf/conductor/internal/config"
	db "github.com/thebtf/conductor/internal/db/gorm"
	"github.com/thebtf/conductor/internal/engine"
	"github.com/thebtf/conductor/internal/server/sse"
	"github.com/thebtf/conductor/pkg/models"
)

// Service is the HTTP front of the orchestration engine: a chi router
// over the session manager, with SSE fan-out of the event log.
type Service struct {
	version     string
	config      *config.Config
	store       *db.Store
	manager     *engine.Manager
	events      *engine.EventLog
	broadcaster *sse.Broadcaster
	router      chi.Router
	startTime   time.Time
	ready       atomic.Bool
}

// NewService wires the HTTP service. The event log's notify hook is
// pointed at the SSE broadcaster so every append reaches stream
// subscribers.
func NewService(version string, cfg *config.Config, store *db.Store, manager *engine.Manager, events *engine.EventLog) *Service {
	svc := &Service{
		version:     version,
		config:      cfg,
		store:       store,
		manager:     manager,
		events:      events,
		broadcaster: sse.NewBroadcaster(),
		router:      chi.NewRouter(),
		startTime:   time.Now(),
	}
	// Fan-out runs off the append path: a stalled subscriber costs the
	// publish goroutine, never the state transition that emitted the
	// event.
	events.SetNotify(func(ev *models.Event) {
		go svc.broadcaster.Publish(ev)
	})
	svc.setupRoutes()
	svc.ready.Store(true)
	return svc
}

// Router returns the service's HTTP handler.
func (s *Service) Router() http.Handler { return s.router }

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/start", s.handleStartSession)
			r.Post("/pause", s.handlePauseSession)
			r.Post("/resume", s.handleResumeSession)
			r.Post("/cancel", s.handleCancelSession)

			r.Get("/steps", s.handleListSteps)
			r.Post("/steps/{stepCode}/execute", s.handleExecuteStep)

			r.Get("/events", s.handleListEvents)
			r.Get("/events/stream", s.handleStreamEvents)

			r.Get("/artifacts", s.handleListArtifacts)
		})
	})
}

// handleHealth reports liveness: store reachability, uptime and
// version.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.ready.Load() || s.store.Ping() != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}
