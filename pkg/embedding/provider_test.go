package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() hclog.Logger {
	return hclog.NewNullLogger()
}

func fastRetryConfig(maxRetries int) Config {
	return Config{
		Timeout:      2 * time.Second,
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "azure"}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "azure")
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(Config{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestKnownTables(t *testing.T) {
	tables := KnownTables()
	require.Len(t, tables, 3)

	byName := map[string]int{}
	for _, tbl := range tables {
		byName[tbl.Name] = tbl.Dimensions
	}
	assert.Equal(t, 1536, byName["chunks"])
	assert.Equal(t, 768, byName["chunks_nomic"])
	assert.Equal(t, 768, byName["chunks_dummy"])
}

func TestOllamaRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "some text", req.Prompt)

		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	cfg := fastRetryConfig(2)
	cfg.OllamaBaseURL = srv.URL
	p, err := NewOllama(cfg, testLogger())
	require.NoError(t, err)

	vec, err := p.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaExhaustedRetriesErrorIsDescriptive(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastRetryConfig(2)
	cfg.OllamaBaseURL = srv.URL
	p, err := NewOllama(cfg, testLogger())
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "some text")
	require.Error(t, err)
	// First attempt plus two retries.
	assert.Equal(t, int32(3), calls.Load())
	// The message carries the failure's type name and is never empty.
	assert.Contains(t, err.Error(), "statusError")
	assert.Contains(t, err.Error(), "500")
}

func TestOpenAIPermanentErrorSkipsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		http.Error(w, `{"error": {"message": "bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := fastRetryConfig(5)
	cfg.OpenAIAPIKey = "test-key"
	cfg.OpenAIBaseURL = srv.URL
	p, err := NewOpenAI(cfg, testLogger())
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "some text")
	require.Error(t, err)
	// 401 is permanent: a single attempt, no retries.
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "401")
}

func TestOpenAIRateLimitIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.5, 0.5}}},
		})
	}))
	defer srv.Close()

	cfg := fastRetryConfig(2)
	cfg.OpenAIAPIKey = "test-key"
	cfg.OpenAIBaseURL = srv.URL
	p, err := NewOpenAI(cfg, testLogger())
	require.NoError(t, err)

	vec, err := p.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDescribeError(t *testing.T) {
	assert.Equal(t, "error: No details available", describeError(nil))

	err := &statusError{Provider: "ollama", Code: 500, Body: "boom"}
	desc := describeError(err)
	assert.Contains(t, desc, "statusError")
	assert.Contains(t, desc, "boom")
}

func TestStatusErrorRetryable(t *testing.T) {
	assert.True(t, (&statusError{Code: 500}).retryable())
	assert.True(t, (&statusError{Code: 503}).retryable())
	assert.True(t, (&statusError{Code: 429}).retryable())
	assert.False(t, (&statusError{Code: 400}).retryable())
	assert.False(t, (&statusError{Code: 404}).retryable())
	// An unfollowed redirect will redirect again; retrying is wasted.
	assert.False(t, (&statusError{Code: 301}).retryable())
	assert.False(t, (&statusError{Code: 302}).retryable())
}

func TestOllamaRedirectIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	cfg := fastRetryConfig(5)
	cfg.OllamaBaseURL = srv.URL
	p, err := NewOllama(cfg, testLogger())
	require.NoError(t, err)
	// Keep the client from following the redirect so the provider
	// sees the 302 itself.
	p.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	_, err = p.Embed(context.Background(), "some text")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "302")
}
