package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonathan/talent-search/internal/intake"
	"github.com/jonathan/talent-search/internal/lifecycle"
	"github.com/jonathan/talent-search/internal/logger"
	"github.com/jonathan/talent-search/internal/metrics"
	"github.com/jonathan/talent-search/internal/schemas"
	"github.com/jonathan/talent-search/internal/server/ratelimit"
	"github.com/jonathan/talent-search/internal/types"
	schemafiles "github.com/jonathan/talent-search/schemas"
)

// maxJSONBody caps JSON and webhook request bodies.
const maxJSONBody = 1 << 20

// SearchReader loads the read model of a search.
type SearchReader interface {
	// GetSearchDetail returns nil, nil when the search does not exist.
	GetSearchDetail(ctx context.Context, id uuid.UUID) (*types.SearchDetail, error)
}

// GradingConfirmer moves a search to grading_confirmed.
type GradingConfirmer interface {
	ConfirmGrading(ctx context.Context, id uuid.UUID, req types.ConfirmGradingRequest) (*types.Search, error)
}

// BriefIntake creates searches from submitted briefs.
type BriefIntake interface {
	Create(ctx context.Context, req types.CreateSearchRequest, files []intake.Upload) (*intake.Created, error)
}

// CallbackHandler verifies and applies automation callbacks.
type CallbackHandler interface {
	Handle(ctx context.Context, raw []byte, sigHeader string) (lifecycle.Outcome, error)
}

// Pinger is a dependency that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Drainer waits for background work to finish.
type Drainer interface {
	Wait()
}

// Deps are the services the HTTP layer delegates to.
type Deps struct {
	Searches SearchReader
	Grading  GradingConfirmer
	Intake   BriefIntake
	Webhooks CallbackHandler
	// Checks are pinged by /health/connections, keyed by name.
	Checks map[string]Pinger
	// Notifier is drained on shutdown. Optional.
	Notifier Drainer
	Logger   logger.Logger
}

// Config holds server configuration
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	CORSOrigins     []string
	RateLimit       *ratelimit.Config
}

// Server represents the HTTP server
type Server struct {
	httpServer    *http.Server
	router        chi.Router
	deps          Deps
	cfg           Config
	log           logger.Logger
	rateLimiter   *ratelimit.Limiter
	confirmSchema *schemas.Schema
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Searches == nil || deps.Grading == nil || deps.Intake == nil || deps.Webhooks == nil {
		return nil, errors.New("server: searches, grading, intake and webhooks are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	confirmSchema, err := schemas.Load(schemafiles.ConfirmGrading)
	if err != nil {
		return nil, err
	}

	rateCfg := cfg.RateLimit
	if rateCfg == nil {
		rateCfg = &ratelimit.Config{Enabled: false}
	}

	s := &Server{
		deps:          deps,
		cfg:           cfg,
		log:           deps.Logger,
		rateLimiter:   ratelimit.NewLimiter(rateCfg),
		confirmSchema: confirmSchema,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.jsonRecoverer)
	r.Use(metrics.Middleware())
	r.Use(s.withCORS)
	r.Use(s.withRateLimit)

	r.Get("/health", s.handleHealth)
	r.Get("/health/connections", s.handleConnections)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/grading/suggestion", s.handleSuggestion)

	r.Post("/searches", s.handleCreateSearch)
	r.Get("/searches/{id}", s.handleGetSearch)
	r.Post("/searches/{id}/confirm-grading", s.handleConfirmGrading)

	r.Post("/webhooks/automation/search-updated", s.handleSearchUpdated)
	// Legacy path still configured in deployed workflows.
	r.Post("/webhooks/n8n/search-updated", s.handleSearchUpdated)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.jsonResponse(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.jsonResponse(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	s.router = r

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully: in-flight
// requests finish, the rate limiter stops and pending notifications drain.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", logger.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.rateLimiter.Stop()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	return s.Shutdown()
}

// Shutdown stops accepting requests and waits for in-flight work.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.rateLimiter.Stop()
	if s.deps.Notifier != nil {
		s.deps.Notifier.Wait()
	}
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}
