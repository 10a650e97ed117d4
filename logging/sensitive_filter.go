package logging

import (
	"fmt"
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces secrets in log output.
const RedactedPlaceholder = "[REDACTED]"

// secretPatterns match credentials that can show up inside free text,
// typically echoed back in provider error messages.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(sk-[a-zA-Z0-9_-]{20,})`),              // OpenAI
	regexp.MustCompile(`(AIza[a-zA-Z0-9_-]{35})`),              // Google / Gemini
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`),   // Authorization headers
	regexp.MustCompile(`(?i)(key=[a-zA-Z0-9_-]{20,})`),         // ?key= query params
	regexp.MustCompile(`(?i)(x-api-key\s*[:=]\s*[^\s,;]{8,})`), // transform backend header
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
}

// dataURLPattern matches inline base64 images. Generated images are carried
// as data URLs and would otherwise flood the log with megabytes of base64.
var dataURLPattern = regexp.MustCompile(`data:([a-zA-Z0-9.+/-]+);base64,([A-Za-z0-9+/=]{16,})`)

// sensitiveKeys are field-name fragments whose values are always redacted.
var sensitiveKeys = []string{
	"GEMINI_API_KEY",
	"OPENAI_API_KEY",
	"TRANSFORM_API_KEY",
	"API_TOKEN",
	"X-API-KEY",
	"API_KEY",
	"APIKEY",
	"PASSWORD",
	"SECRET",
	"AUTHORIZATION",
}

// RedactSensitiveData scrubs credentials and shortens inline images.
//
// Example:
//
//	RedactSensitiveData("gemini rejected key AIza...")  // "gemini rejected key [REDACTED]"
//	RedactSensitiveData("data:image/png;base64,iVBOR...") // "data:image/png;base64,[41236 chars]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	result := dataURLPattern.ReplaceAllStringFunc(value, func(m string) string {
		parts := dataURLPattern.FindStringSubmatch(m)
		return fmt.Sprintf("data:%s;base64,[%d chars]", parts[1], len(parts[2]))
	})
	for _, p := range secretPatterns {
		result = p.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// IsSensitiveField reports whether a field name carries a secret.
func IsSensitiveField(fieldName string) bool {
	upper := strings.ToUpper(fieldName)
	for _, k := range sensitiveKeys {
		if strings.Contains(upper, k) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData reports whether value would be changed by RedactSensitiveData.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}
	if dataURLPattern.MatchString(value) {
		return true
	}
	for _, p := range secretPatterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}
