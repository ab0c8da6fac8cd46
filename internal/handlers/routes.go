package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tubefetch/bot/internal/storage"
)

// Dependencies carries everything the admin routes need.
type Dependencies struct {
	Store    storage.ObjectStore
	Registry *prometheus.Registry
}

// RegisterRoutes attaches the admin endpoints to mux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	mux.HandleFunc("/healthz", HealthHandler{}.Handle)
	mux.HandleFunc("/storage/stats", StorageStatsHandler{Store: deps.Store}.Handle)
	mux.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}
