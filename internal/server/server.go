// Package server holds the shared state behind the HTTP handlers.
package server

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/arkivsog/bogsog/internal/config"
	"github.com/arkivsog/bogsog/pkg/embedding"
	"github.com/arkivsog/bogsog/pkg/models"
)

// ChunkSearcher is the slice of the storage capability set the search
// endpoint needs. *storage.Store satisfies it.
type ChunkSearcher interface {
	Search(ctx context.Context, table string, query []float32, threshold float64) ([]models.SearchRow, error)
}

// Server contains the server state shared by all handlers.
type Server struct {
	// Config holds the refreshable configuration snapshot.
	Config *config.Manager

	// Searcher executes vector-distance scans.
	Searcher ChunkSearcher

	// DB is the database pool, used by readiness checks.
	DB *gorm.DB

	// Logger is the logger for the server.
	Logger hclog.Logger

	// provider is swapped atomically on config refresh.
	mu       sync.RWMutex
	provider embedding.Provider
}

// Provider returns the current embedding provider.
func (s *Server) Provider() embedding.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// SetProvider replaces the embedding provider, typically after a
// config refresh changed the provider selection.
func (s *Server) SetProvider(p embedding.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
}
