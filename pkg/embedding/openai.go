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
	openAITable      = "chunks"
	openAIDimensions = 1536

	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "text-embedding-3-small"

	// Requests per second towards a remote embedding endpoint.
	remoteEmbedRPS = 8
)

// OpenAI generates embeddings via the OpenAI embeddings API.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter
	policy  retryPolicy
	logger  hclog.Logger
}

// NewOpenAI creates an OpenAI embedding provider.
func NewOpenAI(cfg Config, logger hclog.Logger) (*OpenAI, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
	}

	baseURL := cfg.OpenAIBaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := cfg.OpenAIModel
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAI{
		baseURL: baseURL,
		apiKey:  cfg.OpenAIAPIKey,
		model:   model,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(remoteEmbedRPS), 1),
		policy:  newRetryPolicy(cfg),
		logger:  logger.Named("openai"),
	}, nil
}

// Name returns the provider tag.
func (p *OpenAI) Name() string { return "openai" }

// Model returns the embedding model identifier.
func (p *OpenAI) Model() string { return p.model }

// TableName returns the provider's chunk table.
func (p *OpenAI) TableName() string { return openAITable }

// Dimensions returns the table's vector dimension.
func (p *OpenAI) Dimensions() int { return openAIDimensions }

// Embed returns the embedding for text, retried per the policy.
func (p *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.policy.embed(ctx, p.logger, func(callCtx context.Context) ([]float32, error) {
		return p.embedOnce(callCtx, text)
	})
}

type openAIRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *OpenAI) embedOnce(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(openAIRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{Provider: "openai", Code: resp.StatusCode, Body: string(body)}
	}

	var apiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("openai error %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Data) == 0 || len(apiResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai response contained no embedding")
	}

	return apiResp.Data[0].Embedding, nil
}
