package core

import (
	"errors"
	"fmt"
	"net/url"
)

// ConfigError is a configuration problem with an instruction for fixing it.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes carried in ConfigError.Code.
const (
	ErrCodeMissingAuth   = "MISSING_AUTH"
	ErrCodeMissingConfig = "MISSING_CONFIG"
	ErrCodeInvalidURL    = "INVALID_URL"
	ErrCodeInvalidValue  = "INVALID_VALUE"
	ErrCodeStyles        = "INVALID_STYLES"
)

// ErrMissingAuth reports a missing credential for a transform provider.
func ErrMissingAuth(provider string) *ConfigError {
	var action string
	switch provider {
	case ProviderGemini:
		action = "Set GEMINI_API_KEY in your .env file"
	case ProviderOpenAI:
		action = "Set OPENAI_API_KEY in your .env file"
	default:
		action = fmt.Sprintf("Set the API key for %s in your .env file", provider)
	}
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("Missing credentials for the %s transform provider", provider),
		Action:  action,
	}
}

// ErrMissingConfig reports a required variable that is unset.
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrInvalidURL reports a malformed endpoint.
func ErrInvalidURL(varName, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidURL,
		Message: fmt.Sprintf("Invalid %s '%s': %s", varName, value, reason),
		Action:  fmt.Sprintf("Set %s to an http(s) URL, e.g. https://example.com/api/transform", varName),
	}
}

// ErrInvalidValue reports an out-of-range or unknown value.
func ErrInvalidValue(varName, value, want string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s '%s'", varName, value),
		Action:  fmt.Sprintf("Set %s to %s", varName, want),
	}
}

// ErrInvalidStyles reports a style catalog file that failed validation.
func ErrInvalidStyles(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeStyles,
		Message: fmt.Sprintf("Style catalog %s is invalid: %s", path, reason),
		Action:  "Fix the file or unset STYLES_FILE to use the built-in catalog",
	}
}

// IsConfigError unwraps err looking for a *ConfigError.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode returns the ConfigError code in err, or "".
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}

// ValidateEndpointURL accepts absolute http and https URLs with a host.
func ValidateEndpointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
