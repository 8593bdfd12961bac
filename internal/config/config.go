// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultContactsURL is the recruiting-contacts directory endpoint.
const DefaultContactsURL = "https://dev-dot-recruit-u-f79a8.uc.r.appspot.com/api/lateral-recruiting"

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	PromptsPath     string // optional YAML override of the embedded prompt templates
	LogLevel        string
	OpenAI          OpenAIConfig
	Contacts        ContactsConfig
	Typing          TypingConfig
	RateLimit       RateLimitConfig
	SSE             SSEConfig
	ConversationLog ConversationLogConfig
}

// OpenAIConfig controls the LLM provider.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// ContactsConfig controls the contacts directory client.
type ContactsConfig struct {
	URL        string
	Timeout    time.Duration
	MaxResults int
}

// TypingConfig controls the per-fragment delay of streamed replies.
// Each fragment waits Delay plus a random share of Jitter.
type TypingConfig struct {
	Delay  time.Duration
	Jitter time.Duration
}

// RateLimitConfig bounds chat requests per client.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// SSEConfig controls the streamed chat response.
type SSEConfig struct {
	MaxRequestBodySize int64
}

// ConversationLogConfig controls chat transcript logging.
type ConversationLogConfig struct {
	Enabled   bool
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		PromptsPath: getEnv("PROMPTS_PATH", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Timeout: getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Contacts: ContactsConfig{
			URL:        getEnv("CONTACTS_URL", DefaultContactsURL),
			Timeout:    getEnvDuration("CONTACTS_TIMEOUT", 15*time.Second),
			MaxResults: getEnvInt("CONTACTS_MAX_RESULTS", 5),
		},
		Typing: TypingConfig{
			Delay:  getEnvDuration("TYPING_DELAY", 50*time.Millisecond),
			Jitter: getEnvDuration("TYPING_JITTER", 50*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		SSE: SSEConfig{
			MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", true),
			QueueSize: getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 256),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if c.OpenAI.Model == "" {
		return fmt.Errorf("OPENAI_MODEL cannot be empty")
	}
	if c.OpenAI.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	u, err := url.Parse(c.Contacts.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CONTACTS_URL must be an absolute URL")
	}
	if c.Contacts.MaxResults <= 0 {
		return fmt.Errorf("CONTACTS_MAX_RESULTS must be > 0")
	}
	if c.Typing.Delay < 0 || c.Typing.Jitter < 0 {
		return fmt.Errorf("TYPING_DELAY and TYPING_JITTER cannot be negative")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.SSE.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the chat API.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return b
}

// getEnvDuration accepts Go duration strings ("750ms") or bare milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
