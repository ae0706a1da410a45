package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the convointel server.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Storage       StorageConfig
	Upload        UploadConfig
	Transcription TranscriptionConfig
	AI            AIConfig
	Pipeline      PipelineConfig
	Auth          AuthConfig
	Telemetry     TelemetryConfig
}

type ServerConfig struct {
	Port         int
	Env          string
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type StorageConfig struct {
	Dir           string
	PublicBaseURL string
}

type UploadConfig struct {
	MaxBytes int64
}

type TranscriptionConfig struct {
	Provider     string
	BaseURL      string
	APIKey       string
	LanguageCode string
	Timeout      time.Duration
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// PipelineConfig tunes the poll-driven analysis state machine.
type PipelineConfig struct {
	// ClaimLease bounds how long one poll may hold the insight-generation claim.
	ClaimLease time.Duration
	// MinPollInterval throttles provider status checks per job; zero disables it.
	MinPollInterval time.Duration
	FeedbackLockTTL time.Duration
}

type AuthConfig struct {
	RateLimitPerMinute int
	BootstrapAPIKey    string
}

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
	"mock":      true,
}

var validTranscriptionProviders = map[string]bool{
	"http": true,
	"mock": true,
}

// envFiles are read, when present, before the environment is consulted.
// Variables already set in the process environment take precedence.
var envFiles = []string{".env.local", ".env"}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         envInt("CONVOINTEL_PORT", 8080),
			Env:          envString("CONVOINTEL_ENV", "development"),
			WriteTimeout: envDuration("CONVOINTEL_WRITE_TIMEOUT", 3*time.Minute),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			Dir:           envString("STORAGE_DIR", "./data/media"),
			PublicBaseURL: strings.TrimRight(envString("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/media"), "/"),
		},
		Upload: UploadConfig{
			MaxBytes: envInt64("UPLOAD_MAX_BYTES", 50<<20),
		},
		Transcription: TranscriptionConfig{
			Provider:     envString("TRANSCRIPTION_PROVIDER", "http"),
			BaseURL:      strings.TrimRight(os.Getenv("TRANSCRIPTION_BASE_URL"), "/"),
			APIKey:       os.Getenv("TRANSCRIPTION_API_KEY"),
			LanguageCode: os.Getenv("TRANSCRIPTION_LANGUAGE"),
			Timeout:      envDuration("TRANSCRIPTION_TIMEOUT", 30*time.Second),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 120*time.Second),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3.1"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				BaseURL:   envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
				Model:     envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
				MaxTokens: envInt("ANTHROPIC_MAX_TOKENS", 4096),
			},
		},
		Pipeline: PipelineConfig{
			ClaimLease:      envDuration("CLAIM_LEASE", 5*time.Minute),
			MinPollInterval: envDuration("POLL_MIN_INTERVAL", 0),
			FeedbackLockTTL: envDuration("FEEDBACK_LOCK_TTL", 3*time.Minute),
		},
		Auth: AuthConfig{
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
			BootstrapAPIKey:    os.Getenv("BOOTSTRAP_API_KEY"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  envString("OTEL_SERVICE_NAME", "convointel"),
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Storage.Dir == "" {
		return fmt.Errorf("STORAGE_DIR is required")
	}
	if !isHTTPURL(c.Storage.PublicBaseURL) {
		return fmt.Errorf("STORAGE_PUBLIC_BASE_URL must start with http:// or https://, got %q", c.Storage.PublicBaseURL)
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.Upload.MaxBytes)
	}

	if !validTranscriptionProviders[c.Transcription.Provider] {
		return fmt.Errorf("TRANSCRIPTION_PROVIDER must be one of http, mock; got %q", c.Transcription.Provider)
	}
	if c.Transcription.Provider == "http" {
		if c.Transcription.BaseURL == "" {
			return fmt.Errorf("TRANSCRIPTION_BASE_URL is required when TRANSCRIPTION_PROVIDER is http")
		}
		if !isHTTPURL(c.Transcription.BaseURL) {
			return fmt.Errorf("TRANSCRIPTION_BASE_URL must start with http:// or https://, got %q", c.Transcription.BaseURL)
		}
		if c.Transcription.APIKey == "" {
			return fmt.Errorf("TRANSCRIPTION_API_KEY is required when TRANSCRIPTION_PROVIDER is http")
		}
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic, mock; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}

	if c.Pipeline.ClaimLease <= 0 {
		return fmt.Errorf("CLAIM_LEASE must be positive, got %s", c.Pipeline.ClaimLease)
	}
	if c.Pipeline.MinPollInterval < 0 {
		return fmt.Errorf("POLL_MIN_INTERVAL must not be negative, got %s", c.Pipeline.MinPollInterval)
	}

	if c.Auth.BootstrapAPIKey != "" && len(c.Auth.BootstrapAPIKey) < 16 {
		return fmt.Errorf("BOOTSTRAP_API_KEY must be at least 16 characters")
	}

	return nil
}

// loadEnvFiles loads each file that exists. godotenv never overrides
// variables already present in the environment.
func loadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
