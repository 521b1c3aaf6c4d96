package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ecoroute/internal/buildinfo"
	"ecoroute/internal/metrics"
)

// DebugJSON reports build info and the non-secret parts of the configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                  c.Port,
			"AUTH_MODE":             c.AuthMode,
			"ALLOW_ORIGINS":         c.AllowOrigins,
			"RATE_RPS":              c.RateRPS,
			"RATE_BURST":            c.RateBurst,
			"MAX_CONCURRENT_SOLVES": c.MaxConcurrentSolves,
			"SOLVER_TIME_BUDGET":    c.Solver.TimeBudget.String(),
			"SOLVER_OBJECTIVE":      c.Solver.Objective,
			"WEBHOOK_MAX_ATTEMPTS":  c.WebhookMaxAttempts,
			"WEBHOOK_ENDPOINTS":     len(c.WebhookURLs),
			"HAS_DATABASE_URL":      c.DatabaseURL != "",
			"HAS_REDIS_URL":         c.RedisURL != "",
			"HAS_ESTIMATOR":         c.EstimatorPath != "",
		},
		"optimizer": map[string]any{
			"degraded":  s.Optimizer.Degraded(),
			"objective": s.Optimizer.Config().Objective,
		},
	})
}

func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Info())
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings the store with a short deadline.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "degraded": s.Optimizer.Degraded()})
}

func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
}

// WebhookDLQHandler lists deliveries that exhausted their attempts.
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
	type item struct {
		ID           string `json:"id"`
		URL          string `json:"url"`
		EventType    string `json:"event_type"`
		Attempts     int    `json:"attempts"`
		LastError    string `json:"last_error,omitempty"`
		ResponseCode int    `json:"response_code,omitempty"`
	}
	items := []item{}
	if s.DLQ != nil {
		for _, d := range s.DLQ.DeadLetters() {
			items = append(items, item{d.ID, d.URL, d.EventType, d.Attempts, d.LastError, d.ResponseCode})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
