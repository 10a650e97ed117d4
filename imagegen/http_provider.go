package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"alterego/models"

	"github.com/goccy/go-json"
)

// APIKeyHeader carries the shared secret to the transform backend.
const APIKeyHeader = "x-api-key"

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// TransformPayload is the request body of the AlterEgo transform backend.
type TransformPayload struct {
	ImageDataURL models.ImageHandle `json:"imageDataUrl"`
	Prompt       string             `json:"prompt"`
	Caption      string             `json:"caption,omitempty"`
}

// TransformResult is the response body of the AlterEgo transform backend.
type TransformResult struct {
	Success      bool               `json:"success"`
	ImageDataURL models.ImageHandle `json:"imageDataUrl,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// HTTPProvider calls a remote AlterEgo transform backend, such as another
// instance's /api/transform endpoint.
type HTTPProvider struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPProvider creates a provider posting to url.
func NewHTTPProvider(url, apiKey string, client *http.Client) (*HTTPProvider, error) {
	if url == "" {
		return nil, fmt.Errorf("imagegen: transform URL is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{url: url, apiKey: apiKey, client: client}, nil
}

// Name returns "http".
func (p *HTTPProvider) Name() string { return "http" }

// Transform posts the payload and unwraps the backend's result envelope.
func (p *HTTPProvider) Transform(ctx context.Context, req TransformRequest) (models.ImageHandle, error) {
	body, err := json.Marshal(TransformPayload{
		ImageDataURL: req.Source,
		Prompt:       req.Prompt,
		Caption:      req.StyleLabel,
	})
	if err != nil {
		return "", fmt.Errorf("imagegen: failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("imagegen: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set(APIKeyHeader, p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("imagegen: transform request failed: %w", err)
	}
	defer resp.Body.Close()

	var result TransformResult
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(raw, &result) == nil && result.Error != "" {
			return "", fmt.Errorf("%s", result.Error)
		}
		return "", fmt.Errorf("imagegen: transform backend returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", ErrInvalidImage
	}
	if !result.Success {
		if result.Error != "" {
			return "", fmt.Errorf("%s", result.Error)
		}
		return "", ErrInvalidImage
	}
	if !result.ImageDataURL.Valid() {
		return "", ErrInvalidImage
	}
	return result.ImageDataURL, nil
}
