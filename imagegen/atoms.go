package imagegen

import (
	"net/http"
	"strings"
)

// IsAzureEndpoint reports whether endpoint is an Azure OpenAI resource.
//
//	IsAzureEndpoint("https://myresource.openai.azure.com")     // true
//	IsAzureEndpoint("https://api.openai.com/v1")              // false
func IsAzureEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	lower := strings.ToLower(endpoint)
	return strings.Contains(lower, "openai.azure.com") ||
		strings.Contains(lower, "cognitiveservices.azure.com")
}

// normalizeContentType lowercases a Content-Type and strips parameters.
func normalizeContentType(contentType string) string {
	lower := strings.ToLower(contentType)
	if idx := strings.Index(lower, ";"); idx != -1 {
		lower = lower[:idx]
	}
	return strings.TrimSpace(lower)
}

// imageContentType picks the MIME type of data, trusting declared only
// when it names an image. Returns "" for non-images.
func imageContentType(declared string, data []byte) string {
	if ct := normalizeContentType(declared); strings.HasPrefix(ct, "image/") {
		if ct == "image/jpg" {
			return "image/jpeg"
		}
		return ct
	}
	if ct := normalizeContentType(http.DetectContentType(data)); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return ""
}

// extensionFromContentType returns the file extension for an image type.
func extensionFromContentType(contentType string) string {
	switch normalizeContentType(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// truncateText shortens s for log fields.
func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
