// Package imagegen turns a source photo and a style prompt into a new
// image through a remote generative backend.
//
// Providers (Gemini, OpenAI image edits, the AlterEgo HTTP backend)
// implement Transformer. Generator wraps the configured provider with
// request validation, logging and the watermark decorator.
package imagegen

import (
	"context"
	"errors"

	"alterego/models"
)

// TransformRequest is one image-to-image call.
type TransformRequest struct {
	// Source is the uploaded photo
	Source models.ImageHandle
	// Prompt is the full instruction sent to the model
	Prompt string
	// StyleLabel is the concrete style the prompt targets; used for logs
	// and sent to backends that accept it
	StyleLabel string
}

// Transformer produces one image per call. Implementations must honor ctx
// cancellation and are safe for concurrent use.
type Transformer interface {
	Transform(ctx context.Context, req TransformRequest) (models.ImageHandle, error)
}

// Provider is a Transformer backed by a named remote service.
type Provider interface {
	Transformer
	Name() string
}

// Failure messages shown to the user verbatim.
var (
	ErrNoImage      = errors.New("The AI model did not return an image. The prompt may have been blocked.")
	ErrInvalidImage = errors.New("The backend service did not return a valid image.")
)
