package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alterego/core"
	"alterego/logging"
	"alterego/models"

	"go.uber.org/zap"
)

// Generator is the Transformer the rest of the application uses. It
// validates requests, logs each call and applies the watermark decorator
// around the configured Provider.
//
// Thread Safety: Generator is safe for concurrent use if its provider is.
type Generator struct {
	provider Provider
	chain    Transformer
	logger   *logging.Logger
}

// GeneratorConfig holds Generator options.
type GeneratorConfig struct {
	// Watermark enables the watermark decorator
	Watermark bool
	// WatermarkText is the stamped label (default core.DefaultWatermarkText)
	WatermarkText string
}

// NewGenerator wraps provider in the Generator used by the orchestrator.
//
// This molecule composes:
// - The Provider that talks to the model (Gemini, OpenAI or HTTP)
// - An optional Watermarker stamped over every result
// - A logger named "imagegen" tagged with the provider name
//
// Requests are checked before they reach the chain, so providers never see
// an invalid source handle or an empty prompt. An empty WatermarkText falls
// back to core.DefaultWatermarkText. A nil logger is replaced by a no-op
// logger.
//
// Example:
//
//	provider, err := NewHTTPProvider(cfg.TransformURL, cfg.TransformAPIKey, cfg.HTTPClient())
//	if err != nil {
//	    return err
//	}
//	gen, err := NewGenerator(provider, logger, GeneratorConfig{Watermark: true})
//	if err != nil {
//	    return err
//	}
//	img, err := gen.Transform(ctx, req)
func NewGenerator(provider Provider, logger *logging.Logger, cfg GeneratorConfig) (*Generator, error) {
	if provider == nil {
		return nil, fmt.Errorf("imagegen: provider cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var chain Transformer = provider
	if cfg.Watermark {
		text := cfg.WatermarkText
		if text == "" {
			text = core.DefaultWatermarkText
		}
		chain = NewWatermarker(provider, text)
	}

	return &Generator{
		provider: provider,
		chain:    chain,
		logger:   logger.Named("imagegen").With(zap.String("provider", provider.Name())),
	}, nil
}

// NewGeneratorFromConfig builds the provider selected by cfg.Provider.
func NewGeneratorFromConfig(ctx context.Context, cfg *core.Config, logger *logging.Logger) (*Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}

	var (
		provider Provider
		err      error
	)
	switch cfg.Provider {
	case core.ProviderGemini:
		provider, err = NewGeminiProvider(ctx, GeminiProviderConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		})
	case core.ProviderOpenAI:
		provider, err = NewOpenAIProvider(OpenAIProviderConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIImageModel,
			HTTPClient: cfg.HTTPClient(),
		})
	case core.ProviderHTTP:
		provider, err = NewHTTPProvider(cfg.TransformURL, cfg.TransformAPIKey, cfg.HTTPClient())
	default:
		return nil, fmt.Errorf("imagegen: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewGenerator(provider, logger, GeneratorConfig{
		Watermark:     cfg.Watermark,
		WatermarkText: cfg.WatermarkText,
	})
}

// ProviderName returns the name of the wrapped provider.
func (g *Generator) ProviderName() string {
	return g.provider.Name()
}

// Transform validates req and runs it through the provider chain.
func (g *Generator) Transform(ctx context.Context, req TransformRequest) (models.ImageHandle, error) {
	if !req.Source.Valid() {
		return "", fmt.Errorf("imagegen: %w", models.ErrInvalidDataURL)
	}
	if req.Prompt == "" {
		return "", fmt.Errorf("imagegen: prompt cannot be empty")
	}

	start := time.Now()
	g.logger.Debug("Transform started",
		zap.String("style", req.StyleLabel),
		zap.String("prompt", truncateText(req.Prompt, 80)))

	out, err := g.chain.Transform(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			g.logger.Debug("Transform cancelled", zap.String("style", req.StyleLabel))
		} else {
			g.logger.Warn("Transform failed",
				zap.String("style", req.StyleLabel),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		}
		return "", err
	}

	g.logger.Info("Transform completed",
		zap.String("style", req.StyleLabel),
		zap.Duration("elapsed", elapsed))
	return out, nil
}

// Close releases provider resources, if any.
func (g *Generator) Close() error {
	if c, ok := g.provider.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
