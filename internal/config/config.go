// Package config loads the runtime configuration from the environment
// into an immutable snapshot that can be atomically refreshed while
// the server is running.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/arkivsog/bogsog/pkg/chunker"
	"github.com/arkivsog/bogsog/pkg/embedding"
)

// Environment names. Production enables strict validation of
// provider credentials.
const (
	EnvLocal      = "local"
	EnvTest       = "test"
	EnvProduction = "production"
)

const maskedValue = "****"

// Config is one immutable snapshot of the environment. Mutating a
// snapshot after load is a bug; Refresh replaces the whole snapshot
// instead.
type Config struct {
	// Provider selects the embedding backend: openai, ollama or dummy.
	Provider string `json:"provider"`

	OpenAIAPIKey string `json:"openai_api_key"`
	OpenAIModel  string `json:"openai_model"`

	OllamaBaseURL string `json:"ollama_base_url"`
	OllamaModel   string `json:"ollama_model"`

	// ChunkSize is the per-chunk word budget for strategies that honor
	// it.
	ChunkSize        int    `json:"chunk_size"`
	ChunkingStrategy string `json:"chunking_strategy"`

	EmbeddingTimeout      time.Duration `json:"embedding_timeout"`
	EmbeddingMaxRetries   int           `json:"embedding_max_retries"`
	EmbeddingRetryBackoff time.Duration `json:"embedding_retry_backoff"`

	// DistanceThreshold drops search rows whose cosine distance is at
	// or above this value.
	DistanceThreshold float64 `json:"distance_threshold"`

	// DatabaseURL wins over the discrete DB_* variables when set.
	DatabaseURL string `json:"database_url"`
	DBHost      string `json:"db_host"`
	DBPort      string `json:"db_port"`
	DBUser      string `json:"db_user"`
	DBPassword  string `json:"db_password"`
	DBName      string `json:"db_name"`
	DBPoolMin   int    `json:"db_pool_min"`
	DBPoolMax   int    `json:"db_pool_max"`

	// AllowedOrigins is the CORS allowlist (TILLADTE_KALDERE).
	AllowedOrigins []string `json:"allowed_origins"`

	AdminEnabled   bool   `json:"admin_enabled"`
	AdminToken     string `json:"admin_token"`
	AdminAllowView bool   `json:"admin_allow_view"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	Environment string `json:"environment"`
	ListenAddr  string `json:"listen_addr"`

	// chunkSizeSet records whether CHUNK_SIZE was explicitly present,
	// so the load can warn when it is combined with a strategy that
	// ignores it.
	chunkSizeSet bool
}

// Load reads and validates a snapshot from the environment.
func Load(logger hclog.Logger) (*Config, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	cfg := &Config{
		Provider:         envOr("PROVIDER", "dummy"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      envOr("OPENAI_MODEL", "text-embedding-3-small"),
		OllamaBaseURL:    envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:      envOr("OLLAMA_MODEL", "nomic-embed-text"),
		ChunkingStrategy: envOr("CHUNKING_STRATEGY", chunker.StrategySentenceSplitter),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBHost:           envOr("DB_HOST", "localhost"),
		DBPort:           envOr("DB_PORT", "5432"),
		DBUser:           envOr("DB_USER", "postgres"),
		DBPassword:       os.Getenv("DB_PASSWORD"),
		DBName:           envOr("DB_NAME", "bogsog"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "standard"),
		Environment:      envOr("ENVIRONMENT", EnvLocal),
		ListenAddr:       envOr("LISTEN_ADDR", ":8080"),
	}

	var err error
	if cfg.ChunkSize, cfg.chunkSizeSet, err = envInt("CHUNK_SIZE", 500); err != nil {
		return nil, err
	}
	if cfg.EmbeddingMaxRetries, _, err = envInt("EMBEDDING_MAX_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.DBPoolMin, _, err = envInt("DB_POOL_MIN", 1); err != nil {
		return nil, err
	}
	if cfg.DBPoolMax, _, err = envInt("DB_POOL_MAX", 10); err != nil {
		return nil, err
	}
	if cfg.EmbeddingTimeout, err = envSeconds("EMBEDDING_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.EmbeddingRetryBackoff, err = envSeconds("EMBEDDING_RETRY_BACKOFF", time.Second); err != nil {
		return nil, err
	}
	if cfg.DistanceThreshold, err = envFloat("DISTANCE_THRESHOLD", 0.8); err != nil {
		return nil, err
	}
	cfg.AdminEnabled, err = envBool("ADMIN_ENABLED", false)
	if err != nil {
		return nil, err
	}
	// View access follows ADMIN_ENABLED unless explicitly switched off.
	cfg.AdminAllowView, err = envBool("ADMIN_ALLOW_VIEW", true)
	if err != nil {
		return nil, err
	}

	if origins := os.Getenv("TILLADTE_KALDERE"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.chunkSizeSet && cfg.ChunkingStrategy == chunker.StrategyWordOverlap {
		logger.Warn("CHUNK_SIZE is set but the word_overlap strategy uses fixed windows; the value is ignored")
	}

	return cfg, nil
}

// Validate checks the snapshot. Provider credentials are only
// mandatory in production; local and test environments may run
// credential-free with the dummy provider.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Provider,
			validation.Required,
			validation.In("openai", "ollama", "dummy"),
		),
		validation.Field(&c.ChunkingStrategy,
			validation.Required,
			validation.In(chunker.StrategySentenceSplitter, chunker.StrategyWordOverlap),
		),
		validation.Field(&c.Environment,
			validation.Required,
			validation.In(EnvLocal, EnvTest, EnvProduction),
		),
		validation.Field(&c.ChunkSize, validation.Min(1)),
		validation.Field(&c.EmbeddingMaxRetries, validation.Min(0)),
		validation.Field(&c.DistanceThreshold, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.DBPoolMax, validation.Min(1)),
	)
	if err != nil {
		return err
	}

	if c.Environment == EnvProduction {
		if c.Provider == "openai" && c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when PROVIDER=openai in production")
		}
		if c.Provider == "dummy" {
			return fmt.Errorf("the dummy provider is not allowed in production")
		}
	}
	if c.AdminEnabled && c.AdminToken == "" {
		return fmt.Errorf("ADMIN_TOKEN is required when ADMIN_ENABLED=true")
	}

	return nil
}

// Safe returns a copy with credentials masked, suitable for logging
// and the config introspection endpoint.
func (c *Config) Safe() *Config {
	out := *c
	if out.OpenAIAPIKey != "" {
		out.OpenAIAPIKey = maskedValue
	}
	if out.AdminToken != "" {
		out.AdminToken = maskedValue
	}
	if out.DBPassword != "" {
		out.DBPassword = maskedValue
	}
	out.DatabaseURL = maskDatabaseURL(out.DatabaseURL)
	return &out
}

// DSN renders the database connection string. DATABASE_URL wins when
// set; otherwise the discrete DB_* variables are assembled.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

// EmbeddingConfig renders the provider construction parameters.
func (c *Config) EmbeddingConfig() embedding.Config {
	return embedding.Config{
		Provider:      c.Provider,
		OpenAIAPIKey:  c.OpenAIAPIKey,
		OpenAIModel:   c.OpenAIModel,
		OllamaBaseURL: c.OllamaBaseURL,
		OllamaModel:   c.OllamaModel,
		Timeout:       c.EmbeddingTimeout,
		MaxRetries:    c.EmbeddingMaxRetries,
		RetryBackoff:  c.EmbeddingRetryBackoff,
	}
}

// Manager holds the current snapshot and supports atomic refresh.
type Manager struct {
	current atomic.Pointer[Config]
	logger  hclog.Logger
}

// NewManager loads the initial snapshot from the environment.
func NewManager(logger hclog.Logger) (*Manager, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	m := &Manager{logger: logger.Named("config")}
	cfg, err := Load(m.logger)
	if err != nil {
		return nil, err
	}
	m.current.Store(cfg)
	return m, nil
}

// Get returns the current snapshot.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// Refresh re-reads the environment and atomically replaces the
// snapshot. On validation failure the previous snapshot stays in
// effect.
func (m *Manager) Refresh() (*Config, error) {
	cfg, err := Load(m.logger)
	if err != nil {
		return nil, err
	}
	m.current.Store(cfg)
	m.logger.Info("configuration refreshed",
		"provider", cfg.Provider,
		"distance_threshold", cfg.DistanceThreshold,
	)
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, true, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

// envSeconds parses a duration expressed as seconds (integer or
// fractional).
func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number of seconds, got %q", key, v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// maskDatabaseURL hides the password component of a connection URL.
func maskDatabaseURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), maskedValue)
		return u.String()
	}
	return raw
}
