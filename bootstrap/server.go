package bootstrap

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *App) buildRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", a.handleHealthz).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if a.Cache == nil {
		status["cache"] = "disabled"
	} else if err := a.Cache.Ping(r.Context()); err != nil {
		status["cache"] = "unreachable"
	} else {
		status["cache"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(status)
}
