package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/arkivsog/bogsog/internal/server"
	"github.com/arkivsog/bogsog/pkg/embedding"
)

// adminToken extracts the token from either the x-admin-token header
// or a Bearer authorization header.
func adminToken(r *http.Request) string {
	if token := r.Header.Get("x-admin-token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// authorizeAdmin gates an admin request. When the admin surface is
// disabled the endpoint does not exist (404); with a missing or wrong
// token the request is unauthorized. Token comparison is constant
// time.
func authorizeAdmin(srv *server.Server, w http.ResponseWriter, r *http.Request) bool {
	cfg := srv.Config.Get()
	if !cfg.AdminEnabled {
		http.NotFound(w, r)
		return false
	}

	token := adminToken(r)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AdminToken)) != 1 {
		srv.Logger.Warn("rejected admin request", "path", r.URL.Path, "remote", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

// ConfigHandler exposes the masked configuration snapshot.
//
// Endpoint: GET /configz
func ConfigHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		// An explicit view opt-out hides the endpoint entirely, like
		// a disabled admin surface.
		if !srv.Config.Get().AdminAllowView {
			http.NotFound(w, r)
			return
		}
		if !authorizeAdmin(srv, w, r) {
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(srv.Config.Get().Safe()); err != nil {
			srv.Logger.Error("error encoding config response", "error", err)
		}
	})
}

// RefreshConfigHandler re-reads the environment into a fresh snapshot
// and rebuilds the embedding provider from it, so a changed PROVIDER
// or DISTANCE_THRESHOLD takes effect without a restart.
//
// Endpoint: POST /admin/refresh-config
func RefreshConfigHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !authorizeAdmin(srv, w, r) {
			return
		}

		cfg, err := srv.Config.Refresh()
		if err != nil {
			srv.Logger.Error("config refresh failed", "error", err)
			http.Error(w, "Refresh failed: "+err.Error(), http.StatusBadRequest)
			return
		}

		provider, err := embedding.New(cfg.EmbeddingConfig(), srv.Logger)
		if err != nil {
			srv.Logger.Error("provider rebuild failed after refresh", "error", err)
			http.Error(w, "Refresh failed: "+err.Error(), http.StatusBadRequest)
			return
		}
		srv.SetProvider(provider)

		srv.Logger.Info("configuration refreshed via admin endpoint",
			"provider", cfg.Provider,
			"distance_threshold", cfg.DistanceThreshold,
		)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "refreshed",
			"provider": cfg.Provider,
		})
	})
}
