package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/arkivsog/bogsog/internal/server"
	"github.com/arkivsog/bogsog/pkg/database"
)

// readyCheckTimeout caps each readiness subsystem probe.
const readyCheckTimeout = 5 * time.Second

// HealthHandler is the liveness probe. It touches neither the
// database nor the provider and always answers 200 while the process
// is serving.
//
// Endpoint: GET /healthz
func HealthHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":   "ok",
			"service":  "bogsog",
			"provider": srv.Provider().Name(),
		})
	})
}

// ReadyHandler is the readiness probe. It pings the database and
// checks the embedding provider; any failing subsystem turns the
// response into a 503 with per-subsystem detail.
//
// Endpoint: GET /readyz
func ReadyHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		ready := true
		body := map[string]any{}

		if err := database.Ping(ctx, srv.DB); err != nil {
			ready = false
			body["database"] = "error"
			body["database_error"] = err.Error()
			srv.Logger.Error("readiness: database ping failed", "error", err)
		} else {
			body["database"] = "ok"
		}

		provider := srv.Provider()
		body["provider"] = provider.Name()
		switch provider.Name() {
		case "openai":
			// No probe call; remote quota is not spent on readiness.
			body["assumed_provider_ready"] = true
		case "ollama":
			if _, err := provider.Embed(ctx, "ping"); err != nil {
				ready = false
				body["provider_error"] = err.Error()
				srv.Logger.Error("readiness: provider check failed", "provider", provider.Name(), "error", err)
			}
		}

		if ready {
			body["status"] = "ok"
		} else {
			body["status"] = "unavailable"
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(body)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})
}
