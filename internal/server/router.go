// Package server wires the callbackd HTTP and gRPC servers.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/synapse-core/ipgate"
	"github.com/synapse-core/ipgate/internal/handlers"
)

// RouterConfig holds what NewRouter needs.
type RouterConfig struct {
	Handler *handlers.Handler
	Filter  *ipgate.Filter
	Logger  *slog.Logger

	// Registerer receives the HTTP request counter; Gatherer backs /metrics.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds the HTTP routes. Transaction routes sit behind the access
// filter; /health and /metrics do not.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Handler == nil || cfg.Filter == nil {
		return nil, fmt.Errorf("router requires a handler and a filter")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "callbackd_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	if err := registerer.Register(requests); err != nil {
		return nil, fmt.Errorf("failed to register request metrics: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog(logger, requests))
	r.Use(middleware.Recoverer)

	r.Get("/health", cfg.Handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(cfg.Filter.Middleware, recordClientAddr)

		r.Post("/callbacks/transactions", cfg.Handler.Callback)
		r.Get("/transactions", cfg.Handler.List)
		r.Get("/transactions/search", cfg.Handler.Search)
		r.Get("/transactions/{id}", cfg.Handler.Get)
	})

	return r, nil
}
