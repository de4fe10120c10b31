// Package server exposes mounted graph views over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/ingest"
	"github.com/TFMV/graphview/metrics"
	"github.com/TFMV/graphview/physics"
	"github.com/TFMV/graphview/session"
	"github.com/TFMV/graphview/viewer"
)

// Config for the server
type Config struct {
	Address        string
	AllowedOrigins []string
	// Width and Height are the canvas size for sessions that do not send one.
	Width  float64
	Height float64
	// Viewer is the template for every mount. Callbacks, SessionID,
	// Capability and Escalation are filled per session.
	Viewer          viewer.Options
	ShutdownTimeout time.Duration
}

// Deps are the shared collaborators. Nil fields get in-memory defaults.
type Deps struct {
	Logger     *zap.Logger
	Metrics    *metrics.Registry
	Store      session.OverrideStore
	Escalation *session.EscalationCache
}

// Server owns every mounted session and the currently loaded export.
type Server struct {
	cfg        Config
	logger     *zap.Logger
	metrics    *metrics.Registry
	store      session.OverrideStore
	escalation *session.EscalationCache
	router     http.Handler

	mu       sync.RWMutex
	export   *ingest.Export
	sessions map[string]*sessionEntry

	refMu    sync.Mutex
	refFor   *ingest.Export
	refModel *graph.Model
}

// New creates a server. Call SetGraph to load data.
func New(cfg Config, deps Deps) *Server {
	if cfg.Width <= 0 {
		cfg.Width = physics.DefaultConfig().Width
	}
	if cfg.Height <= 0 {
		cfg.Height = physics.DefaultConfig().Height
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		cfg:        cfg,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		store:      deps.Store,
		escalation: deps.Escalation,
		export:     &ingest.Export{},
		sessions:   make(map[string]*sessionEntry),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.DefaultRegistry()
	}
	if s.store == nil {
		s.store = session.NewMemoryStore(session.DefaultTTL)
	}
	if s.escalation == nil {
		s.escalation = session.NewEscalationCache("")
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(s.instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Render-Mode"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/graph", s.handleGraphSnapshot)
		r.Get("/graph/nodes.csv", s.handleGraphCSV)
		r.Get("/graph/nodes/{nodeID}", s.handleNodeDetail)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Get("/frame", s.handleFrame)
				r.Put("/mode", s.handleMode)
				r.Post("/escalation", s.handleEscalation)
				r.Post("/view", s.handleView)
				r.Get("/ws", s.handleWebSocket)
			})
		})
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// SetGraph installs a new export and reloads every mounted session with a
// fresh model. Outstanding layout results for the old model are discarded
// by the viewers.
func (s *Server) SetGraph(ctx context.Context, exp *ingest.Export) {
	if exp == nil {
		exp = &ingest.Export{}
	}
	s.mu.Lock()
	s.export = exp
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	s.logger.Info("Graph data updated",
		zap.Int("nodes", len(exp.Nodes)),
		zap.Int("edges", len(exp.Edges)),
		zap.Int("sessions", len(entries)))

	for _, e := range entries {
		if err := e.viewer.Load(ctx, exp.Nodes, exp.Edges, exp.Bytes); err != nil && !errors.Is(err, viewer.ErrUnmounted) {
			s.logger.Warn("Failed to reload session", zap.String("session", e.viewer.ID()), zap.Error(err))
		}
	}
}

func (s *Server) currentExport() *ingest.Export {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.export
}

// referenceModel lays out the current export once with the server's
// template settings. It backs the session-less export endpoints.
func (s *Server) referenceModel(ctx context.Context) *graph.Model {
	exp := s.currentExport()
	s.refMu.Lock()
	defer s.refMu.Unlock()
	if s.refFor == exp && s.refModel != nil {
		return s.refModel
	}
	m := graph.New(exp.Nodes, exp.Edges)
	cfg := s.cfg.Viewer.Layout
	cfg.Width, cfg.Height = s.cfg.Width, s.cfg.Height
	stats, err := physics.Layout(ctx, m.Nodes(), m.SimulationEdges(), cfg)
	s.metrics.RecordLayout("reference", stats.Ticks, stats.Duration, err)
	if err != nil {
		// Not cached; partial positions are still served.
		s.logger.Warn("Reference layout interrupted", zap.Error(err))
		return m
	}
	s.refFor, s.refModel = exp, m
	return m
}

func (s *Server) lookup(id string) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	return e, ok
}

// SessionIDs returns the mounted session ids in sorted order.
func (s *Server) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close unmounts every session.
func (s *Server) Close() {
	s.mu.Lock()
	entries := s.sessions
	s.sessions = make(map[string]*sessionEntry)
	s.mu.Unlock()
	for _, e := range entries {
		e.close()
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and unmounts all sessions.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("address", s.cfg.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.Close()
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server", zap.Duration("timeout", s.cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
