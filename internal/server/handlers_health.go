package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/talent-search/internal/grading"
	"github.com/jonathan/talent-search/internal/logger"
)

// pingTimeout bounds each readiness check.
const pingTimeout = 3 * time.Second

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConnections pings every dependency and reports each result. Any
// failure makes the response 503.
func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	var (
		mu      sync.Mutex
		results = make(map[string]string, len(s.deps.Checks))
		healthy = true
	)

	var g errgroup.Group
	for name, check := range s.deps.Checks {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			defer cancel()

			status := "ok"
			if err := check.Ping(ctx); err != nil {
				logger.FromContext(r.Context(), s.log).Warn("dependency check failed",
					logger.String("dependency", name), logger.Error(err))
				status = "unavailable"
			}

			mu.Lock()
			defer mu.Unlock()
			results[name] = status
			if status != "ok" {
				healthy = false
			}
			return nil
		})
	}
	_ = g.Wait()

	code, overall := http.StatusOK, "ok"
	if !healthy {
		code, overall = http.StatusServiceUnavailable, "degraded"
	}
	s.jsonResponse(w, code, map[string]any{"status": overall, "checks": results})
}

// handleSuggestion returns the default grading template.
func (s *Server) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.jsonResponse(w, http.StatusOK, grading.Suggest(q.Get("job_title"), q.Get("job_description")))
}
