// Package server wires HTTP handlers into a chi router for the jobchat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/jobchat/internal/auth"
)

// RouterOptions lists what the top-level router mounts.
type RouterOptions struct {
	Hub      *Hub
	Verifier auth.Verifier
	Origins  *OriginPolicy
	// API is mounted under /api when set.
	API http.Handler
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Middleware wraps the plain HTTP routes but not /ws, whose response
	// writer must stay hijackable.
	Middleware []func(http.Handler) http.Handler
}

// SetupRoutes configures the router with the socket endpoint, health checks,
// metrics, the API and the test page.
func SetupRoutes(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/ws", NewSocketHandler(opts.Hub, opts.Verifier, opts.Origins))

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Group(func(r chi.Router) {
		r.Use(opts.Middleware...)

		r.Get("/", HealthHandler)
		r.Get("/healthz", HealthHandler)
		r.Get("/readyz", ReadyHandler(opts.Hub))
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		r.Get("/test", TestPageHandler)

		if opts.API != nil {
			r.Mount("/api", opts.API)
		}
	})

	return r
}
