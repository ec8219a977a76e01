// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthMessage is the message of a successful health response.
const HealthMessage = "ping api is up"

// healthTimeout bounds the datastore probe of one health request.
const healthTimeout = 2 * time.Second

// Pinger is a dependency probed by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the handler.
type Options struct {
	// Name labels the worker in logs and metrics, e.g. "api".
	Name string

	// Datastore is probed by /api/health when non-nil.
	Datastore Pinger

	Logger *slog.Logger
}

// HealthResponse is the body of /api/health.
type HealthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Datastore string `json:"datastore,omitempty"`
}

type handler struct {
	options  Options
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New returns the worker's root handler.
func New(options Options) http.Handler {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	registry := prometheus.NewRegistry()
	h := &handler{
		options: options,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ping_http_requests_total",
			Help:        "HTTP requests served, by route and status code.",
			ConstLabels: prometheus.Labels{"worker": options.Name},
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "ping_http_request_duration_seconds",
			Help:        "HTTP request latency, by route.",
			ConstLabels: prometheus.Labels{"worker": options.Name},
			Buckets:     prometheus.DefBuckets,
		}, []string{"route"}),
	}
	registry.MustRegister(h.requests, h.latency, collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("GET /api/health", h.instrument("/api/health", http.HandlerFunc(h.health)))
	mux.Handle("GET /metrics", h.instrument("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	mux.Handle("/", h.instrument("other", http.NotFoundHandler()))

	return logRequests(options.Logger, mux)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Success: true, Message: HealthMessage}
	status := http.StatusOK

	if h.options.Datastore != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.options.Datastore.Ping(ctx); err != nil {
			h.options.Logger.Error("health check failed", "error", err)
			response = HealthResponse{Success: false}
			status = http.StatusInternalServerError
		} else {
			response.Datastore = "ok"
		}
	}

	writeJSON(w, status, response)
}

// instrument records the request count and latency under route.
func (h *handler) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		h.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		h.requests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}
