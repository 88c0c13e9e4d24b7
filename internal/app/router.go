// Package app wires application components and startup helpers.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/juanqu261/bots-brokerwiz/internal/adapter/httpserver"
	"github.com/juanqu261/bots-brokerwiz/internal/adapter/observability"
	"github.com/juanqu261/bots-brokerwiz/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler implementing the ingress/ops
// surface: bearer-protected job submission and DLQ endpoints, plus
// unauthenticated health/metrics endpoints.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   strings.Split(cfg.CORSAllowMethods, ","),
		AllowedHeaders:   strings.Split(cfg.CORSAllowHeaders, ","),
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           300,
	}))

	bearer := httpserver.BearerAuth(cfg.APIBearerToken)

	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
		wr.Use(bearer)
		wr.Post("/api/{vendor}/cotizar", srv.CotizarHandler())
		wr.Get("/api/dlq", srv.DLQListHandler())
		wr.Get("/api/dlq/{vendor}", srv.DLQListByVendorHandler())
		wr.Post("/api/dlq/{job_id}/retry", srv.DLQRetryHandler())
		wr.Get("/api/vendors", srv.VendorsHandler())
	})

	r.Get("/health", srv.HealthHandler())
	r.Get("/metrics", srv.MetricsHandler())
	r.Get("/metrics/prometheus", srv.PrometheusHandler().ServeHTTP)

	return httpserver.SecurityHeaders(r)
}
