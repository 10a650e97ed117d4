package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TRANSFORM_PROVIDER", "GEMINI_API_KEY", "GEMINI_MODEL", "OPENAI_API_KEY",
		"OPENAI_BASE_URL", "OPENAI_IMAGE_MODEL", "TRANSFORM_URL", "TRANSFORM_API_KEY",
		"TRANSFORM_TIMEOUT", "WATERMARK", "WATERMARK_TEXT", "DATA_DIR", "DB_PATH",
		"STYLES_FILE", "STARTING_CREDITS", "PORT", "API_TOKEN", "RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST", "MAX_UPLOAD_BYTES", "DEV_MODE", "LOG_FILE", "LOG_LEVEL",
		"SHUTDOWN_TIMEOUT", "ACTIVITY_RETENTION_DAYS", "BACKEND_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Provider != ProviderGemini {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderGemini)
	}
	if cfg.StartingCredits != 18 {
		t.Errorf("StartingCredits = %d, want 18", cfg.StartingCredits)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", cfg.RetentionDays)
	}
	if !cfg.Watermark {
		t.Error("Watermark = false, want true")
	}
	if cfg.TransformTimeout != 120*time.Second {
		t.Errorf("TransformTimeout = %v, want 2m", cfg.TransformTimeout)
	}
	if want := filepath.Join(DefaultDataDir, "alterego.db"); cfg.DBPath != want {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, want)
	}
	if cfg.ListenAddr() != ":8080" {
		t.Errorf("ListenAddr() = %q", cfg.ListenAddr())
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSFORM_PROVIDER", "HTTP")
	t.Setenv("TRANSFORM_URL", "https://backend.example.com/api/transform")
	t.Setenv("TRANSFORM_TIMEOUT", "45s")
	t.Setenv("WATERMARK", "off")
	t.Setenv("DATA_DIR", "/tmp/ae")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Provider != ProviderHTTP {
		t.Errorf("Provider = %q, want http", cfg.Provider)
	}
	if cfg.TransformTimeout != 45*time.Second {
		t.Errorf("TransformTimeout = %v, want 45s", cfg.TransformTimeout)
	}
	if cfg.Watermark {
		t.Error("Watermark = true, want false")
	}
	if cfg.DBPath != filepath.Join("/tmp/ae", "alterego.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		wantCode string
	}{
		{"gemini without key", map[string]string{}, ErrCodeMissingAuth},
		{"openai without key", map[string]string{"TRANSFORM_PROVIDER": "openai"}, ErrCodeMissingAuth},
		{"http without url", map[string]string{"TRANSFORM_PROVIDER": "http"}, ErrCodeMissingConfig},
		{"http bad url", map[string]string{"TRANSFORM_PROVIDER": "http", "TRANSFORM_URL": "ftp://x"}, ErrCodeInvalidURL},
		{"unknown provider", map[string]string{"TRANSFORM_PROVIDER": "dalle"}, ErrCodeInvalidValue},
		{"bad port", map[string]string{"GEMINI_API_KEY": "k", "PORT": "70000"}, ErrCodeInvalidValue},
		{"negative credits", map[string]string{"GEMINI_API_KEY": "k", "STARTING_CREDITS": "-1"}, ErrCodeInvalidValue},
		{"zero credits", map[string]string{"GEMINI_API_KEY": "k", "STARTING_CREDITS": "0"}, ErrCodeInvalidValue},
		{"negative retention", map[string]string{"GEMINI_API_KEY": "k", "ACTIVITY_RETENTION_DAYS": "-2"}, ErrCodeInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			if err == nil {
				t.Fatal("LoadConfig() error = nil")
			}
			if got := GetErrorCode(err); got != tt.wantCode {
				t.Errorf("code = %q, want %q (err: %v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestParseEnvHelpers(t *testing.T) {
	t.Setenv("AE_INT", " 42 ")
	t.Setenv("AE_BAD_INT", "forty")
	t.Setenv("AE_BOOL", "Yes")
	t.Setenv("AE_DURATION", "7")
	t.Setenv("AE_FLOAT", "2.5")

	if got := ParseIntEnv("AE_INT", 0); got != 42 {
		t.Errorf("ParseIntEnv = %d, want 42", got)
	}
	if got := ParseIntEnv("AE_BAD_INT", 3); got != 3 {
		t.Errorf("ParseIntEnv fallback = %d, want 3", got)
	}
	if !ParseBoolEnv("AE_BOOL", false) {
		t.Error("ParseBoolEnv(Yes) = false")
	}
	if got := ParseDurationEnv("AE_DURATION", 1); got != 7*time.Second {
		t.Errorf("ParseDurationEnv = %v, want 7s", got)
	}
	if got := ParseFloat64Env("AE_FLOAT", 0); got != 2.5 {
		t.Errorf("ParseFloat64Env = %v, want 2.5", got)
	}
	if got := GetEnvOrDefault("AE_UNSET_VALUE", "x"); got != "x" {
		t.Errorf("GetEnvOrDefault = %q, want x", got)
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitCodeSuccess},
		{"canceled", fmt.Errorf("serve: %w", context.Canceled), ExitCodeSIGINT},
		{"config", fmt.Errorf("load: %w", ErrMissingConfig("TRANSFORM_URL")), ExitCodeConfig},
		{"other", errors.New("boom"), ExitCodeError},
	}
	for _, tt := range tests {
		if got := ExitCodeFor(tt.err); got != tt.want {
			t.Errorf("%s: ExitCodeFor() = %d (%s), want %d", tt.name, got, ExitCodeName(got), tt.want)
		}
	}
}

func TestReadConfig_SkipsValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", "/srv/alterego")
	t.Setenv("BACKEND_API_KEY", "remote")

	if _, err := LoadConfig(); GetErrorCode(err) != "MISSING_AUTH" {
		t.Fatalf("LoadConfig() error = %v, want MISSING_AUTH", err)
	}

	cfg := ReadConfig()
	if cfg.DBPath != filepath.Join("/srv/alterego", "alterego.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.BackendAPIKey != "remote" {
		t.Errorf("BackendAPIKey = %q", cfg.BackendAPIKey)
	}
}
