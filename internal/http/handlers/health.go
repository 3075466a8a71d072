package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health reports liveness and the state of the live views.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stream": a.Views.Aggregate().State,
	})
}

func (a *App) Metrics(w http.ResponseWriter, r *http.Request) {
	if a.Gatherer == nil {
		a.error(w, http.StatusNotFound, "not_found", "metrics disabled")
		return
	}
	promhttp.HandlerFor(a.Gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
