// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultModel          = "claude-sonnet-4-5"
	defaultMaxTokens      = 2048
	defaultRequestTimeout = 90 * time.Second
	defaultUsersCSV       = "data/users.csv"
	defaultOrdersCSV      = "data/orders.csv"
)

// Config holds everything the bot service needs at startup.
type Config struct {
	// AnthropicAPIKey authenticates model calls. Required.
	AnthropicAPIKey string
	// Model is the Anthropic model identifier used for all calls.
	Model string
	// MaxTokens caps each model response.
	MaxTokens int64
	// UsersCSV and OrdersCSV are the dataset source files.
	UsersCSV  string
	OrdersCSV string
	// TwilioAuthToken enables webhook signature validation when set.
	TwilioAuthToken string
	// RequestTimeout bounds one full question-to-answer pass.
	RequestTimeout time.Duration
	// EvalEnabled turns on LLM-judged answer scoring.
	EvalEnabled bool
}

// LoadFromEnv reads configuration from the environment, loading a local
// .env file first if one exists.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		Model:           envOr("ANALYTICS_BOT_MODEL", defaultModel),
		MaxTokens:       defaultMaxTokens,
		UsersCSV:        envOr("ANALYTICS_BOT_USERS_CSV", defaultUsersCSV),
		OrdersCSV:       envOr("ANALYTICS_BOT_ORDERS_CSV", defaultOrdersCSV),
		TwilioAuthToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		RequestTimeout:  defaultRequestTimeout,
		EvalEnabled:     os.Getenv("ANALYTICS_BOT_EVAL") != "false",
	}

	if v := os.Getenv("ANALYTICS_BOT_MAX_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ANALYTICS_BOT_MAX_TOKENS %q: %w", v, err)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("ANALYTICS_BOT_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ANALYTICS_BOT_REQUEST_TIMEOUT %q: %w", v, err)
		}
		cfg.RequestTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.UsersCSV == "" || c.OrdersCSV == "" {
		return fmt.Errorf("dataset paths are required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
