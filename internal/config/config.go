// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/lawaid/internal/domain"
)

// Default remote tiers.
const (
	DefaultPrimaryModelURL  = "https://api-inference.huggingface.co/models/HuggingFaceH4/zephyr-7b-beta"
	DefaultFallbackModelURL = "https://api-inference.huggingface.co/models/mistralai/Mistral-7B-Instruct-v0.2"
	DefaultQAModelURL       = "https://api-inference.huggingface.co/models/deepset/roberta-base-squad2"
	DefaultGeminiModel      = "gemini-2.0-flash"
)

// DefaultSystemPrompt seeds every new transcript.
const DefaultSystemPrompt = "You are LawAid, India's most trusted legal AI. " +
	"You must provide highly accurate, lawful, respectful answers based only on Indian law. " +
	"Avoid hallucination. If unsure, say so. Do not offer personal opinions."

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string
	FrontendURL string

	// HFAPIKey is the default credential used when a session has none.
	HFAPIKey      string
	GeminiAPIKey  string
	GeminiModel   string
	EndpointsFile string
	Endpoints     []domain.Endpoint
	QAModelURL    string

	InferenceTimeout  time.Duration
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64

	Search SearchConfig

	StoreBackend  string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	LocalModel LocalModelConfig

	AssistantName    string
	AssistantCreator string
	SystemPrompt     string
	MaxUploadBytes   int64

	ConversationLog ConversationLogConfig
}

// SearchConfig controls web-search augmentation.
type SearchConfig struct {
	APIKey     string
	Enabled    bool
	Domains    []string
	NumResults int
}

// LocalModelConfig controls the container-hosted last-resort tier.
type LocalModelConfig struct {
	Enabled bool
	Image   string
	ModelID string
	Port    int
	Runtime string // Docker runtime: "" = default (runc), "runsc" = gVisor
	Idle    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables. endpointsFile, when
// non-empty, overrides ENDPOINTS_FILE.
func Load(endpointsFile string) (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}
	if endpointsFile == "" {
		endpointsFile = getEnv("ENDPOINTS_FILE", "")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", ""),
		FrontendURL: getEnv("FRONTEND_URL", ""),

		HFAPIKey:      getEnv("HF_API_KEY", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", DefaultGeminiModel),
		EndpointsFile: endpointsFile,
		QAModelURL:    getEnv("QA_MODEL_URL", DefaultQAModelURL),

		InferenceTimeout:  getEnvDuration("INFERENCE_TIMEOUT", 60*time.Second),
		MaxNewTokens:      getEnvInt("MAX_NEW_TOKENS", 512),
		Temperature:       getEnvFloat("TEMPERATURE", 0.2),
		TopP:              getEnvFloat("TOP_P", 0.9),
		RepetitionPenalty: getEnvFloat("REPETITION_PENALTY", 1.15),

		Search: SearchConfig{
			APIKey:     getEnv("SERPAPI_API_KEY", ""),
			Enabled:    getEnvBool("SEARCH_ENABLED", false),
			Domains:    getEnvList("SEARCH_DOMAINS", nil),
			NumResults: getEnvInt("SEARCH_NUM_RESULTS", 5),
		},

		StoreBackend:  getEnv("STORE_BACKEND", "sqlite"),
		DBPath:        getEnv("DB_PATH", "./data/lawaid.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SessionTTL:    getEnvDuration("SESSION_TTL", 60*time.Minute),

		LocalModel: LocalModelConfig{
			Enabled: getEnvBool("LOCAL_MODEL_ENABLED", false),
			Image:   getEnv("LOCAL_MODEL_IMAGE", ""),
			ModelID: getEnv("LOCAL_MODEL_ID", ""),
			Port:    getEnvInt("LOCAL_MODEL_PORT", 8081),
			Runtime: getEnv("CONTAINER_RUNTIME", ""),
			Idle:    getEnvDuration("LOCAL_MODEL_IDLE", 30*time.Minute),
		},

		AssistantName:    getEnv("ASSISTANT_NAME", "LawAid"),
		AssistantCreator: getEnv("ASSISTANT_CREATOR", ""),
		SystemPrompt:     getEnv("SYSTEM_PROMPT", DefaultSystemPrompt),
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if cfg.EndpointsFile != "" {
		eps, err := LoadEndpoints(cfg.EndpointsFile)
		if err != nil {
			return nil, err
		}
		cfg.Endpoints = eps
	} else {
		cfg.Endpoints = cfg.defaultEndpoints()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultEndpoints builds the chain from PRIMARY_MODEL_URL and
// FALLBACK_MODEL_URL, followed by Gemini when a key is configured.
func (c *Config) defaultEndpoints() []domain.Endpoint {
	eps := []domain.Endpoint{
		{Name: "primary", Kind: domain.KindHF, URL: getEnv("PRIMARY_MODEL_URL", DefaultPrimaryModelURL)},
	}
	if url := getEnv("FALLBACK_MODEL_URL", DefaultFallbackModelURL); url != "" {
		eps = append(eps, domain.Endpoint{Name: "fallback", Kind: domain.KindHF, URL: url})
	}
	if c.GeminiAPIKey != "" {
		eps = append(eps, domain.Endpoint{
			Name:       "gemini",
			Kind:       domain.KindGemini,
			Model:      c.GeminiModel,
			Credential: c.GeminiAPIKey,
		})
	}
	return eps
}

// QAEndpoint returns the extractive question-answering endpoint, if any.
func (c *Config) QAEndpoint() (domain.Endpoint, bool) {
	if c.QAModelURL == "" {
		return domain.Endpoint{}, false
	}
	return domain.Endpoint{Name: "qa", Kind: domain.KindHF, URL: c.QAModelURL}, true
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be > 0")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	switch c.StoreBackend {
	case "memory":
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty when STORE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be memory, sqlite or redis, got %q", c.StoreBackend)
	}
	if err := ValidateEndpoints(c.Endpoints); err != nil {
		return err
	}
	if c.LocalModel.Enabled && (c.LocalModel.Port <= 0 || c.LocalModel.Port > 65535) {
		return fmt.Errorf("LOCAL_MODEL_PORT must be a valid port")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
