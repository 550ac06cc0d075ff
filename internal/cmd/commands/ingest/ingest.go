// Package ingest implements the batch ingestion command.
package ingest

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/arkivsog/bogsog/internal/cmd/base"
	"github.com/arkivsog/bogsog/internal/config"
	"github.com/arkivsog/bogsog/pkg/chunker"
	"github.com/arkivsog/bogsog/pkg/database"
	"github.com/arkivsog/bogsog/pkg/embedding"
	"github.com/arkivsog/bogsog/pkg/ingest"
	"github.com/arkivsog/bogsog/pkg/models"
	"github.com/arkivsog/bogsog/pkg/storage"
)

type Command struct {
	*base.Command

	flagInput       string
	flagStatusFile  string
	flagFailedFile  string
	flagConcurrency int
	flagCollection  string
}

func (c *Command) Synopsis() string {
	return "Ingest a list of PDF URLs into the index"
}

func (c *Command) Help() string {
	return `Usage: bogsog ingest -input=urls.txt

  Fetch, chunk and embed every PDF in the URL list, then persist the
  chunks for the configured embedding provider. Books already indexed
  for the provider are skipped. A single book's failure never aborts
  the run.
` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("ingest", flag.ExitOnError))

	f.StringVar(
		&c.flagInput, "input", "",
		"Path to the URL list, one URL per line (required)",
	)
	f.StringVar(
		&c.flagStatusFile, "status", "",
		"Path for the processing status document, updated during the run",
	)
	f.StringVar(
		&c.flagFailedFile, "failed", "",
		"Path for the failed books document, written when failures occurred",
	)
	f.IntVar(
		&c.flagConcurrency, "concurrency", 5,
		"Number of concurrent ingestion workers",
	)
	f.StringVar(
		&c.flagCollection, "collection", string(models.CollectionWW2),
		"Collection tag for ingested books (ww2, slaegt)",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	if c.flagInput == "" {
		c.UI.Error("a URL list is required (-input)")
		return 1
	}
	collection := models.Collection(c.flagCollection)
	if !collection.Valid() {
		c.UI.Error(fmt.Sprintf("unknown collection %q", c.flagCollection))
		return 1
	}

	manager, err := config.NewManager(c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}
	cfg := manager.Get()

	log := base.NewLogger("bogsog", cfg.LogLevel, cfg.LogFormat)

	urls, err := ingest.ReadURLFile(c.flagInput)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error reading URL list: %v", err))
		return 1
	}
	if len(urls) == 0 {
		c.UI.Warn("URL list is empty, nothing to do")
		return 0
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

	strategy, err := chunker.New(cfg.ChunkingStrategy)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating chunking strategy: %v", err))
		return 1
	}

	orchestrator, err := ingest.NewOrchestrator(
		ingest.WithStore(store),
		ingest.WithProvider(provider),
		ingest.WithStrategy(strategy),
		ingest.WithLogger(log),
		ingest.WithMaxWorkers(c.flagConcurrency),
		ingest.WithMaxTokens(cfg.ChunkSize),
		ingest.WithCollection(collection),
		ingest.WithStatusFile(c.flagStatusFile),
		ingest.WithFailedFile(c.flagFailedFile),
	)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating orchestrator: %v", err))
		return 1
	}

	result, err := orchestrator.Run(ctx, urls)
	if err != nil {
		c.UI.Warn(fmt.Sprintf("run finished with reporting errors: %v", err))
	}

	// Per-book failures do not fail the command; the reported counts
	// are the contract.
	c.UI.Output(fmt.Sprintf("%d successful, %d failed, %d total",
		result.Successful, result.Failed, result.Total))
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
