package imagegen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"alterego/models"
)

// DefaultMaxDownloadBytes caps a fetched image.
const DefaultMaxDownloadBytes = 20 << 20

// Downloader fetches images that providers return as temporary URLs.
// It is safe for concurrent use.
type Downloader struct {
	client   *http.Client
	maxBytes int64
}

// DownloaderConfig holds configuration for the Downloader.
type DownloaderConfig struct {
	// HTTPClient is the client for downloads (optional)
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is nil (default 60s)
	Timeout time.Duration
	// MaxBytes caps the body size (default DefaultMaxDownloadBytes)
	MaxBytes int64
}

// NewDownloader creates a downloader.
func NewDownloader(cfg DownloaderConfig) *Downloader {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownloadBytes
	}
	return &Downloader{client: client, maxBytes: maxBytes}
}

// DownloadBytes fetches url and returns the body and its image MIME type.
func (d *Downloader) DownloadBytes(ctx context.Context, url string) ([]byte, string, error) {
	if url == "" {
		return nil, "", fmt.Errorf("imagegen: URL cannot be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to create download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("imagegen: download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to read image data: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, "", fmt.Errorf("imagegen: image exceeds %d bytes", d.maxBytes)
	}

	mime := imageContentType(resp.Header.Get("Content-Type"), data)
	if mime == "" {
		return nil, "", ErrInvalidImage
	}
	return data, mime, nil
}

// Fetch downloads url into a data URL handle.
func (d *Downloader) Fetch(ctx context.Context, url string) (models.ImageHandle, error) {
	data, mime, err := d.DownloadBytes(ctx, url)
	if err != nil {
		return "", err
	}
	return models.NewDataURL(mime, data), nil
}
