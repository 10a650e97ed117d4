package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"alterego/models"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIBaseURL is used when no base URL is configured.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// StagedFilePattern matches the temporary files source images are staged
// in for upload. Each is removed after its call; a crash can leave some.
const StagedFilePattern = "alterego-source-*"

// OpenAIProvider implements Provider with the OpenAI image edit endpoint.
//
// It handles:
//   - OpenAI and Azure OpenAI client configuration
//   - gpt-image-1 (always base64) and dall-e-2 (URL or base64) responses
//   - Downloading URL responses into data URL handles
//
// Thread Safety: OpenAIProvider is safe for concurrent use. Each call
// writes the source image to its own temporary file.
type OpenAIProvider struct {
	client     *openai.Client
	downloader *Downloader
	model      string
	azure      bool
}

// OpenAIProviderConfig holds configuration for the OpenAI provider.
type OpenAIProviderConfig struct {
	// APIKey is the OpenAI or Azure key (required)
	APIKey string
	// BaseURL is the API endpoint (default DefaultOpenAIBaseURL). Azure
	// resource URLs switch the client to Azure mode.
	BaseURL string
	// Model is the image model or Azure deployment (default gpt-image-1)
	Model string
	// HTTPClient is used for API calls and downloads (optional)
	HTTPClient *http.Client
}

// NewOpenAIProvider creates a provider for OpenAI or Azure OpenAI.
//
// Example:
//
//	provider, err := NewOpenAIProvider(OpenAIProviderConfig{APIKey: key})
//	if err != nil {
//	    return err
//	}
//	img, err := provider.Transform(ctx, req)
func NewOpenAIProvider(cfg OpenAIProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("imagegen: OpenAI API key is required")
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if endpoint == "" {
		endpoint = DefaultOpenAIBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-image-1"
	}

	azure := IsAzureEndpoint(endpoint)
	var clientConfig openai.ClientConfig
	if azure {
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, endpoint)
		// Azure routes by deployment name; the deployment is the model
		clientConfig.AzureModelMapperFunc = func(string) string { return model }
	} else {
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		clientConfig.BaseURL = endpoint
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientConfig),
		downloader: NewDownloader(DownloaderConfig{HTTPClient: cfg.HTTPClient}),
		model:      model,
		azure:      azure,
	}, nil
}

// Name returns "openai" or "azure".
func (p *OpenAIProvider) Name() string {
	if p.azure {
		return "azure"
	}
	return "openai"
}

// Model returns the configured model or deployment.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Transform sends the source photo and prompt to the image edit endpoint.
func (p *OpenAIProvider) Transform(ctx context.Context, req TransformRequest) (models.ImageHandle, error) {
	mime, data, err := req.Source.Decode()
	if err != nil {
		return "", fmt.Errorf("imagegen: %w", err)
	}

	// the SDK uploads from a file and names the part after it, which is
	// how the API infers the image format
	file, err := os.CreateTemp("", StagedFilePattern+extensionFromContentType(mime))
	if err != nil {
		return "", fmt.Errorf("imagegen: failed to stage source image: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return "", fmt.Errorf("imagegen: failed to stage source image: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		return "", fmt.Errorf("imagegen: failed to stage source image: %w", err)
	}

	editReq := openai.ImageEditRequest{
		Image:  file,
		Prompt: req.Prompt,
		Model:  p.model,
		N:      1,
	}
	// gpt-image-1 rejects response_format and always returns base64
	if p.model == openai.CreateImageModelDallE2 {
		editReq.ResponseFormat = openai.CreateImageResponseFormatB64JSON
	}

	resp, err := p.client.CreateEditImage(ctx, editReq)
	if err != nil {
		return "", fmt.Errorf("imagegen: %s image edit failed: %w", p.Name(), err)
	}
	if len(resp.Data) == 0 {
		return "", ErrNoImage
	}

	first := resp.Data[0]
	switch {
	case first.B64JSON != "":
		raw, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return "", ErrInvalidImage
		}
		outMIME := imageContentType("", raw)
		if outMIME == "" {
			return "", ErrInvalidImage
		}
		return models.NewDataURL(outMIME, raw), nil
	case first.URL != "":
		return p.downloader.Fetch(ctx, first.URL)
	default:
		return "", ErrNoImage
	}
}
