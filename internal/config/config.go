package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	defaultOpenAIModel = "gpt-3.5-turbo"
	defaultGeminiModel = "gemini-1.5-flash-latest"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"conversations.db"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`

	JWTSecret      string        `env:"JWT_SECRET"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`

	// Mock mode bypasses moderation and completion and answers with canned text.
	MockMode bool `env:"AI_MOCK_REST_CALLS" envDefault:"false"`

	LLMProvider      string `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	ChatModel        string `env:"CHAT_MODEL"`
	ChatMaxTokens    int    `env:"CHAT_MAX_TOKENS" envDefault:"2000"`
	SummaryMaxTokens int    `env:"SUMMARY_MAX_TOKENS" envDefault:"20"`

	LLMMaxRetries           uint64        `env:"LLM_MAX_RETRIES" envDefault:"3"`
	LLMRetryInitialInterval time.Duration `env:"LLM_RETRY_INITIAL_INTERVAL" envDefault:"500ms"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment is authoritative.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and fills the provider-specific model default.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}

	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.ChatModel == "" {
			c.ChatModel = defaultOpenAIModel
		}
		if !c.MockMode && c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY environment variable is required unless AI_MOCK_REST_CALLS is set")
		}
	case ProviderGemini:
		if c.ChatModel == "" {
			c.ChatModel = defaultGeminiModel
		}
		if !c.MockMode && c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY environment variable is required unless AI_MOCK_REST_CALLS is set")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.ChatMaxTokens <= 0 || c.SummaryMaxTokens <= 0 {
		return errors.New("CHAT_MAX_TOKENS and SUMMARY_MAX_TOKENS must be positive")
	}
	return nil
}
