package webui

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"alterego/imagegen"
	"alterego/logging"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// TransformBackend serves POST /api/transform, the remote transform
// contract that HTTPProvider speaks, so one instance can act as the
// generation backend of another.
type TransformBackend struct {
	transformer imagegen.Transformer
	apiKey      string
	maxBytes    int64
	logger      *logging.Logger
}

// NewTransformBackend creates the handler. Requests must carry apiKey in
// the x-api-key header.
func NewTransformBackend(transformer imagegen.Transformer, apiKey string, maxBytes int64, logger *logging.Logger) *TransformBackend {
	if logger == nil {
		logger = logging.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &TransformBackend{
		transformer: transformer,
		apiKey:      apiKey,
		// base64 inflates by 4/3; leave room for the prompt
		maxBytes: maxBytes*4/3 + 64<<10,
		logger:   logger.Named("backend"),
	}
}

func (b *TransformBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	key := r.Header.Get(imagegen.APIKeyHeader)
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(b.apiKey)) != 1 {
		b.logger.Warn("Unauthorized transform request", zap.String("remote_addr", getClientIP(r)))
		http.Error(w, "Unauthorized", http.StatusForbidden)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, b.maxBytes)
	var req imagegen.TransformPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, imagegen.TransformResult{Error: "Image is too large."})
			return
		}
		writeJSON(w, http.StatusBadRequest, imagegen.TransformResult{Error: "Invalid request body."})
		return
	}
	if req.ImageDataURL == "" || strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, imagegen.TransformResult{Error: `Missing "imageDataUrl" or "prompt".`})
		return
	}
	if !req.ImageDataURL.Valid() {
		writeJSON(w, http.StatusBadRequest, imagegen.TransformResult{Error: "Invalid imageDataUrl format."})
		return
	}

	out, err := b.transformer.Transform(r.Context(), imagegen.TransformRequest{
		Source:     req.ImageDataURL,
		Prompt:     req.Prompt,
		StyleLabel: req.Caption,
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		b.logger.Error("Transform request failed", zap.String("caption", req.Caption), zap.Error(err))
		msg := "An internal error occurred."
		if errors.Is(err, imagegen.ErrNoImage) {
			msg = imagegen.ErrNoImage.Error()
		}
		writeJSON(w, http.StatusInternalServerError, imagegen.TransformResult{Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, imagegen.TransformResult{Success: true, ImageDataURL: out})
}
