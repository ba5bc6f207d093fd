// Package config provides application configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all application configuration.
type Config struct {
	Server          ServerConfig          `koanf:"server"`
	Orchestrator    OrchestratorConfig    `koanf:"orchestrator"`
	LLM             LLMConfig             `koanf:"llm"`
	Store           StoreConfig           `koanf:"store"`
	Retrieval       RetrievalConfig       `koanf:"retrieval"`
	ConversationLog ConversationLogConfig `koanf:"conversation_log"`
	RateLimit       RateLimitConfig       `koanf:"rate_limit"`
	SSE             SSEConfig             `koanf:"sse"`
	GRPC            GRPCConfig            `koanf:"grpc"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `koanf:"port"`
	FrontendURL     string        `koanf:"frontend_url"`
	CORSOrigins     string        `koanf:"cors_origins"` // comma-separated
	LogLevel        string        `koanf:"log_level"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// OrchestratorConfig controls turn execution.
type OrchestratorConfig struct {
	Mode                string `koanf:"mode"`
	DefaultSystemPrompt string `koanf:"default_system_prompt"`
	SystemPromptFile    string `koanf:"system_prompt_file"`
	PromptsDir          string `koanf:"prompts_dir"`
	StepBudget          int    `koanf:"step_budget"`
}

// LLMConfig holds the completion backend settings.
type LLMConfig struct {
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	Temperature float64       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
}

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Driver            string        `koanf:"driver"` // sqlite, redis or memory
	DBPath            string        `koanf:"db_path"`
	RedisAddr         string        `koanf:"redis_addr"`
	RedisPassword     string        `koanf:"redis_password"`
	RedisDB           int           `koanf:"redis_db"`
	RedisPrefix       string        `koanf:"redis_prefix"`
	SessionTTL        time.Duration `koanf:"session_ttl"`
	RetentionInterval time.Duration `koanf:"retention_interval"`
}

// RetrievalConfig controls citation lookup and document ingestion.
type RetrievalConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Path           string `koanf:"path"` // empty keeps the collection in memory
	Collection     string `koanf:"collection"`
	TopK           int    `koanf:"top_k"`
	EmbeddingModel string `koanf:"embedding_model"`
	DocsDir        string `koanf:"docs_dir"`
	ChunkSize      int    `koanf:"chunk_size"`
	ChunkOverlap   int    `koanf:"chunk_overlap"`
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Dir           string `koanf:"dir"`
	GlobalEnabled bool   `koanf:"global_enabled"`
	GlobalPath    string `koanf:"global_path"`
	QueueSize     int    `koanf:"queue_size"`
}

// RateLimitConfig bounds chat requests per client.
type RateLimitConfig struct {
	RequestsPerWindow int           `koanf:"requests_per_window"`
	WindowDuration    time.Duration `koanf:"window_duration"`
}

// SSEConfig controls the streaming endpoint.
type SSEConfig struct {
	MaxRequestBodySize int64         `koanf:"max_request_body_size"`
	RetryDelay         time.Duration `koanf:"retry_delay"`
	KeepaliveInterval  time.Duration `koanf:"keepalive_interval"`
}

// GRPCConfig configures the gRPC health endpoint. An empty Addr disables it.
type GRPCConfig struct {
	Addr string `koanf:"addr"`
}

// envKeys maps environment variables onto configuration keys.
var envKeys = map[string]string{
	"PORT":               "server.port",
	"FRONTEND_URL":       "server.frontend_url",
	"CORS_ALLOW_ORIGINS": "server.cors_origins",
	"LOG_LEVEL":          "server.log_level",
	"SHUTDOWN_TIMEOUT":   "server.shutdown_timeout",

	"ORCHESTRATOR_MODE":     "orchestrator.mode",
	"DEFAULT_SYSTEM_PROMPT": "orchestrator.default_system_prompt",
	"SYSTEM_PROMPT_FILE":    "orchestrator.system_prompt_file",
	"PROMPTS_DIR":           "orchestrator.prompts_dir",
	"STEP_BUDGET":           "orchestrator.step_budget",

	"OPENAI_BASE_URL": "llm.base_url",
	"OPENAI_API_KEY":  "llm.api_key",
	"OPENAI_MODEL":    "llm.model",
	"LLM_TEMPERATURE": "llm.temperature",
	"LLM_TIMEOUT":     "llm.timeout",

	"STORE_DRIVER":       "store.driver",
	"DB_PATH":            "store.db_path",
	"REDIS_ADDR":         "store.redis_addr",
	"REDIS_PASSWORD":     "store.redis_password",
	"REDIS_DB":           "store.redis_db",
	"REDIS_PREFIX":       "store.redis_prefix",
	"SESSION_TTL":        "store.session_ttl",
	"RETENTION_INTERVAL": "store.retention_interval",

	"RETRIEVAL_ENABLED":       "retrieval.enabled",
	"CHROMA_PATH":             "retrieval.path",
	"RETRIEVAL_COLLECTION":    "retrieval.collection",
	"RETRIEVAL_TOP_K":         "retrieval.top_k",
	"EMBEDDING_MODEL":         "retrieval.embedding_model",
	"DOCS_DIR":                "retrieval.docs_dir",
	"RETRIEVAL_CHUNK_SIZE":    "retrieval.chunk_size",
	"RETRIEVAL_CHUNK_OVERLAP": "retrieval.chunk_overlap",

	"CONVERSATION_LOG_ENABLED":        "conversation_log.enabled",
	"CONVERSATION_LOG_DIR":            "conversation_log.dir",
	"CONVERSATION_LOG_GLOBAL_ENABLED": "conversation_log.global_enabled",
	"CONVERSATION_LOG_GLOBAL_PATH":    "conversation_log.global_path",
	"CONVERSATION_LOG_QUEUE_SIZE":     "conversation_log.queue_size",

	"RATE_LIMIT_REQUESTS": "rate_limit.requests_per_window",
	"RATE_LIMIT_WINDOW":   "rate_limit.window_duration",

	"SSE_MAX_REQUEST_BODY_SIZE": "sse.max_request_body_size",
	"SSE_RETRY_DELAY":           "sse.retry_delay",
	"SSE_KEEPALIVE_INTERVAL":    "sse.keepalive_interval",

	"GRPC_ADDR": "grpc.addr",
}

// Load builds the configuration from the embedded defaults, the optional
// YAML file at path and the environment, in increasing precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Unknown variables map to "" and are skipped by the provider.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	switch c.Orchestrator.Mode {
	case "router", "interview":
	default:
		errs = append(errs, fmt.Errorf("ORCHESTRATOR_MODE must be router or interview, got %q", c.Orchestrator.Mode))
	}
	if c.Orchestrator.StepBudget < 1 {
		errs = append(errs, errors.New("STEP_BUDGET must be >= 1"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, errors.New("LLM_TEMPERATURE must be between 0 and 2"))
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH cannot be empty"))
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR cannot be empty"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be sqlite, redis or memory, got %q", c.Store.Driver))
	}
	if c.Retrieval.Enabled {
		if c.Retrieval.TopK <= 0 {
			errs = append(errs, errors.New("RETRIEVAL_TOP_K must be > 0"))
		}
		if c.Retrieval.Collection == "" {
			errs = append(errs, errors.New("RETRIEVAL_COLLECTION cannot be empty"))
		}
		if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
			errs = append(errs, errors.New("RETRIEVAL_CHUNK_OVERLAP must be smaller than RETRIEVAL_CHUNK_SIZE"))
		}
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		errs = append(errs, errors.New("CONVERSATION_LOG_DIR cannot be empty"))
	}
	if c.ConversationLog.GlobalEnabled && c.ConversationLog.GlobalPath == "" {
		errs = append(errs, errors.New("CONVERSATION_LOG_GLOBAL_PATH cannot be empty"))
	}
	if c.ConversationLog.QueueSize <= 0 {
		errs = append(errs, errors.New("CONVERSATION_LOG_QUEUE_SIZE must be > 0"))
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		errs = append(errs, errors.New("rate limit requests and window must be > 0"))
	}
	if c.SSE.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("SSE_MAX_REQUEST_BODY_SIZE must be > 0"))
	}
	return errors.Join(errs...)
}

// AllowedOrigins returns the configured CORS origins.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if c.Server.FrontendURL != "" && !contains(out, c.Server.FrontendURL) && !contains(out, "*") {
		out = append(out, c.Server.FrontendURL)
	}
	return out
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.FrontendURL == "" ||
		strings.Contains(c.Server.FrontendURL, "localhost") ||
		strings.Contains(c.Server.FrontendURL, "127.0.0.1")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
