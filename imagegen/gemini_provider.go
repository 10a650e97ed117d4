package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"alterego/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements Provider with a Gemini image-capable model.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// GeminiProviderConfig holds configuration for the Gemini provider.
type GeminiProviderConfig struct {
	// APIKey is the Google AI Studio key (required)
	APIKey string
	// Model is the image generation model (required)
	Model string
	// Options are appended to the client options, e.g. a custom endpoint
	Options []option.ClientOption
}

// NewGeminiProvider dials the Gemini API. Close releases the client.
func NewGeminiProvider(ctx context.Context, cfg GeminiProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("imagegen: Gemini API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("imagegen: Gemini model is required")
	}

	opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, cfg.Options...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("imagegen: failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.Model}, nil
}

// Name returns "gemini".
func (p *GeminiProvider) Name() string { return "gemini" }

// Transform sends the photo as inline data followed by the prompt.
func (p *GeminiProvider) Transform(ctx context.Context, req TransformRequest) (models.ImageHandle, error) {
	mime, data, err := req.Source.Decode()
	if err != nil {
		return "", fmt.Errorf("imagegen: %w", err)
	}

	model := p.client.GenerativeModel(p.model)
	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mime, Data: data},
		genai.Text(req.Prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", ErrNoImage
		}
		return "", fmt.Errorf("imagegen: gemini request failed: %w", err)
	}
	return firstInlineImage(resp)
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// firstInlineImage returns the first image part of the first candidate.
func firstInlineImage(resp *genai.GenerateContentResponse) (models.ImageHandle, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoImage
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return "", ErrNoImage
	}
	for _, part := range cand.Content.Parts {
		blob, ok := part.(genai.Blob)
		if !ok || len(blob.Data) == 0 || !strings.HasPrefix(blob.MIMEType, "image/") {
			continue
		}
		return models.NewDataURL(blob.MIMEType, blob.Data), nil
	}
	return "", ErrNoImage
}
