package api

import (
	"net/http"

	"github.com/arkivsog/bogsog/internal/server"
)

// NewRouter wires all endpoints onto a mux with CORS applied.
func NewRouter(srv *server.Server) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/search", SearchHandler(srv))
	mux.Handle("/healthz", HealthHandler(srv))
	mux.Handle("/readyz", ReadyHandler(srv))
	mux.Handle("/configz", ConfigHandler(srv))
	mux.Handle("/admin/refresh-config", RefreshConfigHandler(srv))
	return withCORS(srv, mux)
}
