// Package embedding provides pluggable vector embedding providers.
// Each provider owns a fixed chunk table binding so the storage layer
// can route reads and writes without branching on provider identity.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Provider generates vector embeddings for text.
type Provider interface {
	// Embed returns the embedding vector for the given text, retried
	// with bounded backoff on transient failure.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider tag ("openai", "ollama", "dummy").
	Name() string

	// Model returns the model identifier used for audit columns.
	Model() string

	// TableName returns the provider's chunk table.
	TableName() string

	// Dimensions returns the fixed vector dimension of that table.
	Dimensions() int
}

// Config selects and parameterizes a provider.
type Config struct {
	// Provider is one of "openai", "ollama", "dummy".
	Provider string

	OpenAIAPIKey  string
	OpenAIBaseURL string // override for tests; default https://api.openai.com
	OpenAIModel   string

	OllamaBaseURL string
	OllamaModel   string

	// Per-call deadline for a single embedding request.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts beyond the first.
	MaxRetries int

	// RetryBackoff is the base delay before the first retry; doubled
	// on each subsequent retry.
	RetryBackoff time.Duration
}

// TableSpec names one provider chunk table and its vector dimension,
// for schema bootstrap.
type TableSpec struct {
	Name       string
	Dimensions int
}

// KnownTables lists the chunk tables of all providers. Bootstrap
// ensures each of them so cross-provider re-ingestion never races
// table creation.
func KnownTables() []TableSpec {
	return []TableSpec{
		{Name: openAITable, Dimensions: openAIDimensions},
		{Name: ollamaTable, Dimensions: ollamaDimensions},
		{Name: dummyTable, Dimensions: dummyDimensions},
	}
}

// New constructs the provider selected by cfg.Provider. This is the
// only place that inspects the provider string.
func New(cfg Config, logger hclog.Logger) (Provider, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg, logger)
	case "ollama":
		return NewOllama(cfg, logger)
	case "dummy":
		return NewDummy(), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (supported: openai, ollama, dummy)", cfg.Provider)
	}
}
