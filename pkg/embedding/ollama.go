package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

const (
	ollamaTable      = "chunks_nomic"
	ollamaDimensions = 768

	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "nomic-embed-text"
)

// Ollama generates embeddings via a local Ollama server.
// Install: https://ollama.ai/download, then: ollama pull nomic-embed-text
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *rate.Limiter
	policy  retryPolicy
	logger  hclog.Logger
}

// NewOllama creates an Ollama embedding provider.
func NewOllama(cfg Config, logger hclog.Logger) (*Ollama, error) {
	baseURL := cfg.OllamaBaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	model := cfg.OllamaModel
	if model == "" {
		model = defaultOllamaModel
	}

	return &Ollama{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(remoteEmbedRPS), 1),
		policy:  newRetryPolicy(cfg),
		logger:  logger.Named("ollama"),
	}, nil
}

// Name returns the provider tag.
func (p *Ollama) Name() string { return "ollama" }

// Model returns the embedding model identifier.
func (p *Ollama) Model() string { return p.model }

// TableName returns the provider's chunk table.
func (p *Ollama) TableName() string { return ollamaTable }

// Dimensions returns the table's vector dimension.
func (p *Ollama) Dimensions() int { return ollamaDimensions }

// Embed returns the embedding for text, retried per the policy.
func (p *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.policy.embed(ctx, p.logger, func(callCtx context.Context) ([]float32, error) {
		return p.embedOnce(callCtx, text)
	})
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (p *Ollama) embedOnce(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(ollamaRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{Provider: "ollama", Code: resp.StatusCode, Body: string(body)}
	}

	var apiResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(apiResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama response contained no embedding")
	}

	embedding := make([]float32, len(apiResp.Embedding))
	for i, v := range apiResp.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}
