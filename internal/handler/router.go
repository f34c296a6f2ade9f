// Package handler wires the HTTP surface: the websocket endpoint, the small
// REST API, and the metrics exporter.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pwalder/cospace/backend/internal/handler/ws"
	middlewarePkg "github.com/pwalder/cospace/backend/internal/middleware"
	"github.com/pwalder/cospace/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the realtime gateway and object catalog.
func NewRouter(gateway *ws.Gateway, objects ws.ObjectSource, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/ws", gateway.HandleWebSocket)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		api.Get("/objects", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
				"objects": objects.Objects(),
			})
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return r
}
