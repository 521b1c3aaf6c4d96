// Package api implements the HTTP surface of the route optimisation service.
package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"ecoroute/internal/auth"
	"ecoroute/internal/config"
	"ecoroute/internal/opt"
	"ecoroute/internal/store"
	"ecoroute/internal/webhooks"
)

var errBusy = errors.New("no optimisation slot became free before the request ended")

type Server struct {
	Store     store.Store
	Optimizer *opt.Optimizer
	Broker    EventBroker
	Hooks     *webhooks.Publisher
	DLQ       *webhooks.Queue
	Auth      *auth.Verifier

	cfg     config.Config
	log     *zap.Logger
	solves  *semaphore.Weighted
	limiter *rate.Limiter
}

// Deps are the collaborators cmd/api builds before the server.
type Deps struct {
	Store     store.Store
	Optimizer *opt.Optimizer
	Broker    EventBroker
	Hooks     *webhooks.Publisher
	Queue     *webhooks.Queue
	Log       *zap.Logger
}

// NewServer wires handlers around deps. A nil broker becomes an in-memory
// one and a nil store an in-memory store.
func NewServer(cfg config.Config, d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Store == nil {
		d.Store = store.NewMemory()
	}
	if d.Broker == nil {
		d.Broker = NewBroker()
	}
	if d.Optimizer == nil {
		d.Optimizer = opt.New(opt.LinearEstimator{SpeedKph: cfg.AverageSpeedKph}, cfg.SolverConfig(), d.Log)
	}
	slots := cfg.MaxConcurrentSolves
	if slots < 1 {
		slots = 1
	}
	s := &Server{
		Store:     d.Store,
		Optimizer: d.Optimizer,
		Broker:    d.Broker,
		Hooks:     d.Hooks,
		DLQ:       d.Queue,
		Auth:      auth.NewVerifier(cfg.AuthMode, cfg.AuthHMACSecret),
		cfg:       cfg,
		log:       d.Log,
		solves:    semaphore.NewWeighted(int64(slots)),
	}
	if cfg.RateRPS > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = int(cfg.RateRPS) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), burst)
	}
	return s
}

// Routes returns the fully wrapped handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Optimisation
	mux.HandleFunc("POST /optimize_routes", s.limited(s.OptimizeHandler))
	mux.HandleFunc("POST /v1/dispatch", s.limited(s.require(s.DispatchHandler, auth.RoleDispatcher)))

	// Orders
	mux.HandleFunc("GET /orders", s.ListOrdersHandler)
	mux.HandleFunc("POST /orders", s.require(s.CreateOrderHandler, auth.RoleDispatcher))
	mux.HandleFunc("GET /orders/nearby", s.NearbyOrdersHandler)
	mux.HandleFunc("GET /orders/{id}", s.GetOrderHandler)
	mux.HandleFunc("PUT /orders/{id}", s.require(s.UpdateOrderHandler, auth.RoleDispatcher))
	mux.HandleFunc("DELETE /orders/{id}", s.require(s.DeleteOrderHandler, auth.RoleDispatcher))

	// Vehicles
	mux.HandleFunc("GET /vehicles", s.ListVehiclesHandler)
	mux.HandleFunc("POST /vehicles", s.require(s.CreateVehicleHandler, auth.RoleDispatcher))
	mux.HandleFunc("GET /vehicles/{id}", s.GetVehicleHandler)
	mux.HandleFunc("PUT /vehicles/{id}", s.require(s.UpdateVehicleHandler, auth.RoleDispatcher))
	mux.HandleFunc("DELETE /vehicles/{id}", s.require(s.DeleteVehicleHandler, auth.RoleDispatcher))
	mux.HandleFunc("POST /vehicles/{id}/telemetry", s.require(s.TelemetryHandler, auth.RoleDispatcher, auth.RoleDriver))

	// Streaming
	mux.HandleFunc("GET /v1/stream", s.StreamHandler)

	// Health, metrics, docs
	mux.HandleFunc("GET /{$}", s.HealthHandler)
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", s.MetricsHandler())
	mux.HandleFunc("GET /debug/vars", s.DebugJSON)
	mux.HandleFunc("GET /version", s.VersionHandler)
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)

	// Admin
	mux.HandleFunc("GET /v1/admin/webhook-dlq", s.require(s.WebhookDLQHandler))

	return s.requestID(s.logRequests(s.instrument(s.cors(mux))))
}

// require rejects callers without one of roles. Admins always pass.
func (s *Server) require(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.Auth.FromHeader(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="ecoroute"`)
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
			return
		}
		if !p.Has(roles...) {
			writeProblem(w, http.StatusForbidden, "Forbidden", "role "+p.Role+" may not call this endpoint", r.URL.Path)
			return
		}
		next(w, r)
	}
}

// limited applies the token bucket when RATE_RPS is set.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
			return
		}
		next(w, r)
	}
}

// publish sends evt to stream subscribers and queues it for webhooks.
func (s *Server) publish(topic, typ string, data any) {
	s.Broker.Publish(topic, newEvent(typ, data))
	if err := s.Hooks.Emit(typ, data); err != nil {
		s.log.Warn("webhook enqueue failed", zap.String("event", typ), zap.Error(err))
	}
}
