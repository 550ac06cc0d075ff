// Package server implements the HTTP server command.
package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkivsog/bogsog/internal/api"
	"github.com/arkivsog/bogsog/internal/cmd/base"
	"github.com/arkivsog/bogsog/internal/config"
	srv "github.com/arkivsog/bogsog/internal/server"
	"github.com/arkivsog/bogsog/pkg/database"
	"github.com/arkivsog/bogsog/pkg/embedding"
	"github.com/arkivsog/bogsog/pkg/storage"
)

const shutdownGrace = 15 * time.Second

type Command struct {
	*base.Command

	flagAddr string
}

func (c *Command) Synopsis() string {
	return "Run the search API server"
}

func (c *Command) Help() string {
	return `Usage: bogsog server

  Run the semantic search API server. Configuration is read from the
  environment; see the README for the variable reference.
` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("server", flag.ExitOnError))

	f.StringVar(
		&c.flagAddr, "addr", "",
		"[LISTEN_ADDR] Address to listen on (overrides the environment)",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	manager, err := config.NewManager(c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}
	cfg := manager.Get()

	log := base.NewLogger("bogsog", cfg.LogLevel, cfg.LogFormat)

	addr := cfg.ListenAddr
	if c.flagAddr != "" {
		addr = c.flagAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(database.Config{
		DSN:      cfg.DSN(),
		MinConns: cfg.DBPoolMin,
		MaxConns: cfg.DBPoolMax,
	}, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to database: %v", err))
		return 1
	}
	defer database.Close(db)

	store := storage.New(db, log)
	if err := store.Bootstrap(ctx, providerTables()); err != nil {
		c.UI.Error(fmt.Sprintf("error bootstrapping schema: %v", err))
		return 1
	}

	provider, err := embedding.New(cfg.EmbeddingConfig(), log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating embedding provider: %v", err))
		return 1
	}

	s := &srv.Server{
		Config:   manager,
		Searcher: store,
		DB:       db,
		Logger:   log,
	}
	s.SetProvider(provider)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: api.NewRouter(s),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			"addr", addr,
			"provider", provider.Name(),
			"environment", cfg.Environment,
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.UI.Error(fmt.Sprintf("server error: %v", err))
			return 1
		}
	case <-ctx.Done():
		log.Info("shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
			return 1
		}
	}

	log.Info("server stopped")
	return 0
}

// providerTables maps every known provider chunk table into the
// storage bootstrap form.
func providerTables() []storage.ProviderTable {
	specs := embedding.KnownTables()
	tables := make([]storage.ProviderTable, 0, len(specs))
	for _, spec := range specs {
		tables = append(tables, storage.ProviderTable{
			Name:       spec.Name,
			Dimensions: spec.Dimensions,
		})
	}
	return tables
}
