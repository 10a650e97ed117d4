// Package core holds configuration, configuration errors, exit codes and
// small shared atoms used by every other package.
package core

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// Transform provider names accepted in TRANSFORM_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"
)

// Defaults applied when the matching variable is unset.
const (
	DefaultGeminiModel      = "gemini-2.0-flash-preview-image-generation"
	DefaultOpenAIImageModel = "gpt-image-1"
	DefaultWatermarkText    = "AlterEgo AI"
	DefaultStartingCredits  = 18
	DefaultPort             = 8080
	DefaultDataDir          = "data"
	DefaultMaxUploadBytes   = 10 << 20
	DefaultRetentionDays    = 30
)

// Config holds all configuration values.
type Config struct {
	// Transform provider
	Provider         string
	GeminiAPIKey     string
	GeminiModel      string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIImageModel string
	TransformURL     string // backend endpoint for the http provider
	TransformAPIKey  string // sent as x-api-key to TransformURL
	TransformTimeout time.Duration
	Watermark        bool
	WatermarkText    string

	// Storage
	DataDir         string
	DBPath          string
	StylesFile      string // optional YAML catalog override
	StartingCredits int
	RetentionDays   int // activity log retention

	// Web surface
	Port           int
	APIToken       string // empty disables auth on the web API
	BackendAPIKey  string // enables POST /api/transform for remote clients
	RateLimitRPS   float64
	RateLimitBurst int
	MaxUploadBytes int64

	// Logging and lifecycle
	DevMode         bool
	LogFile         string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// LoadConfig reads configuration from the environment. Call godotenv.Load
// first when a .env file should be honored. The returned config is
// validated; the error is a *ConfigError describing the first problem.
func LoadConfig() (*Config, error) {
	cfg := ReadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfig is LoadConfig without validation. Offline commands that only
// touch storage use it so they run without provider credentials.
func ReadConfig() *Config {
	cfg := &Config{
		Provider:         strings.ToLower(GetEnvOrDefault("TRANSFORM_PROVIDER", ProviderGemini)),
		GeminiAPIKey:     GetEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:      GetEnvOrDefault("GEMINI_MODEL", DefaultGeminiModel),
		OpenAIAPIKey:     GetEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    GetEnvOrDefault("OPENAI_BASE_URL", ""),
		OpenAIImageModel: GetEnvOrDefault("OPENAI_IMAGE_MODEL", DefaultOpenAIImageModel),
		TransformURL:     GetEnvOrDefault("TRANSFORM_URL", ""),
		TransformAPIKey:  GetEnvOrDefault("TRANSFORM_API_KEY", ""),
		TransformTimeout: ParseDurationEnv("TRANSFORM_TIMEOUT", 120),
		Watermark:        ParseBoolEnv("WATERMARK", true),
		WatermarkText:    GetEnvOrDefault("WATERMARK_TEXT", DefaultWatermarkText),

		DataDir:         GetEnvOrDefault("DATA_DIR", DefaultDataDir),
		StylesFile:      GetEnvOrDefault("STYLES_FILE", ""),
		StartingCredits: ParseIntEnv("STARTING_CREDITS", DefaultStartingCredits),
		RetentionDays:   ParseIntEnv("ACTIVITY_RETENTION_DAYS", DefaultRetentionDays),

		Port:           ParseIntEnv("PORT", DefaultPort),
		APIToken:       GetEnvOrDefault("API_TOKEN", ""),
		BackendAPIKey:  GetEnvOrDefault("BACKEND_API_KEY", ""),
		RateLimitRPS:   ParseFloat64Env("RATE_LIMIT_RPS", 5),
		RateLimitBurst: ParseIntEnv("RATE_LIMIT_BURST", 10),
		MaxUploadBytes: ParseInt64Env("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),

		DevMode:         ParseBoolEnv("DEV_MODE", false),
		LogFile:         GetEnvOrDefault("LOG_FILE", ""),
		LogLevel:        GetEnvOrDefault("LOG_LEVEL", ""),
		ShutdownTimeout: ParseDurationEnv("SHUTDOWN_TIMEOUT", 30),
	}

	cfg.DBPath = GetEnvOrDefault("DB_PATH", filepath.Join(cfg.DataDir, "alterego.db"))
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "alterego.log")
	}
	return cfg
}

// Validate checks provider credentials and numeric ranges.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return ErrMissingAuth(ProviderGemini)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return ErrMissingAuth(ProviderOpenAI)
		}
	case ProviderHTTP:
		if c.TransformURL == "" {
			return ErrMissingConfig("TRANSFORM_URL")
		}
		if err := ValidateEndpointURL(c.TransformURL); err != nil {
			return ErrInvalidURL("TRANSFORM_URL", c.TransformURL, err.Error())
		}
	default:
		return ErrInvalidValue("TRANSFORM_PROVIDER", c.Provider, "one of gemini, openai, http")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidValue("PORT", fmt.Sprint(c.Port), "a port between 1 and 65535")
	}
	if c.StartingCredits < 1 {
		return ErrInvalidValue("STARTING_CREDITS", fmt.Sprint(c.StartingCredits), "one or more")
	}
	if c.RetentionDays < 0 {
		return ErrInvalidValue("ACTIVITY_RETENTION_DAYS", fmt.Sprint(c.RetentionDays), "zero or more")
	}
	if c.MaxUploadBytes <= 0 {
		return ErrInvalidValue("MAX_UPLOAD_BYTES", fmt.Sprint(c.MaxUploadBytes), "a positive byte count")
	}
	if c.RateLimitRPS < 0 {
		return ErrInvalidValue("RATE_LIMIT_RPS", fmt.Sprint(c.RateLimitRPS), "zero (disabled) or more")
	}
	return nil
}

// HTTPClient returns the client used for provider calls. The timeout is
// the only deadline a transform gets; the orchestrator adds none.
func (c *Config) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.TransformTimeout}
}

// ListenAddr returns the address the web surface binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
