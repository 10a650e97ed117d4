// Package models defines the domain types shared by the orchestrator, the
// stores and the web surface.
package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// ImageHandle is an opaque image reference. Concretely it is a base64
// data URL ("data:image/png;base64,..."), which is what the transform
// backends accept and return and what the stores persist.
type ImageHandle string

// ErrInvalidDataURL is returned when a handle is not a base64 image data URL.
var ErrInvalidDataURL = errors.New("invalid image data URL")

var dataURLRe = regexp.MustCompile(`^data:(image/[\w.+-]+);base64,(.*)$`)

// NewDataURL encodes raw image bytes as a handle.
func NewDataURL(mimeType string, data []byte) ImageHandle {
	return ImageHandle("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// Decode splits a handle into its MIME type and raw bytes.
func (h ImageHandle) Decode() (mimeType string, data []byte, err error) {
	m := dataURLRe.FindStringSubmatch(string(h))
	if m == nil {
		return "", nil, ErrInvalidDataURL
	}
	data, err = base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return m[1], data, nil
}

// MIMEType returns the handle's MIME type without decoding the payload.
func (h ImageHandle) MIMEType() (string, bool) {
	m := dataURLRe.FindStringSubmatch(string(h))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Valid reports whether the handle is a well-formed image data URL.
func (h ImageHandle) Valid() bool {
	_, _, err := h.Decode()
	return err == nil
}

// ImageStatus is the per-item generation state.
type ImageStatus int

const (
	StatusPending ImageStatus = iota
	StatusDone
	StatusError
)

func (s ImageStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

func parseStatus(s string) (ImageStatus, error) {
	switch strings.ToLower(s) {
	case "pending":
		return StatusPending, nil
	case "done":
		return StatusDone, nil
	case "error":
		return StatusError, nil
	default:
		return 0, fmt.Errorf("models: unknown image status %q", s)
	}
}

// UnknownErrorMessage is recorded when a failure carries no message.
const UnknownErrorMessage = "An unknown error occurred."

// GeneratedImage is one style's result: Pending, Done{url} or Error{message}.
// The fields are unexported so that a Done without a URL or an Error
// without a message cannot be built.
type GeneratedImage struct {
	status  ImageStatus
	caption string
	url     ImageHandle
	message string
}

// PendingImage marks caption as in flight.
func PendingImage(caption string) GeneratedImage {
	return GeneratedImage{status: StatusPending, caption: caption}
}

// DoneImage records a successful result. An empty handle is recorded as a
// failure instead.
func DoneImage(caption string, url ImageHandle) GeneratedImage {
	if url == "" {
		return FailedImage(caption, "The backend service did not return a valid image.")
	}
	return GeneratedImage{status: StatusDone, caption: caption, url: url}
}

// FailedImage records a failure. An empty message is replaced with
// UnknownErrorMessage.
func FailedImage(caption, message string) GeneratedImage {
	if message == "" {
		message = UnknownErrorMessage
	}
	return GeneratedImage{status: StatusError, caption: caption, message: message}
}

// Status returns the item state.
func (g GeneratedImage) Status() ImageStatus { return g.status }

// Caption is the concrete style the item was generated under. For the
// wildcard it holds the resolved style, not "Surprise Me!".
func (g GeneratedImage) Caption() string { return g.caption }

// URL returns the result handle when Done.
func (g GeneratedImage) URL() (ImageHandle, bool) { return g.url, g.status == StatusDone }

// Err returns the failure message when Error.
func (g GeneratedImage) Err() (string, bool) { return g.message, g.status == StatusError }

// IsTerminal reports Done or Error.
func (g GeneratedImage) IsTerminal() bool { return g.status != StatusPending }

type generatedImageJSON struct {
	Status  string      `json:"status"`
	Caption string      `json:"caption"`
	URL     ImageHandle `json:"url,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// MarshalJSON emits {status, caption, url?, error?}.
func (g GeneratedImage) MarshalJSON() ([]byte, error) {
	return json.Marshal(generatedImageJSON{
		Status:  g.status.String(),
		Caption: g.caption,
		URL:     g.url,
		Error:   g.message,
	})
}

// UnmarshalJSON rejects combinations the constructors cannot produce.
func (g *GeneratedImage) UnmarshalJSON(data []byte) error {
	var raw generatedImageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status, err := parseStatus(raw.Status)
	if err != nil {
		return err
	}
	switch status {
	case StatusDone:
		if raw.URL == "" {
			return fmt.Errorf("models: done image %q has no url", raw.Caption)
		}
		*g = GeneratedImage{status: StatusDone, caption: raw.Caption, url: raw.URL}
	case StatusError:
		if raw.Error == "" {
			return fmt.Errorf("models: failed image %q has no error", raw.Caption)
		}
		*g = GeneratedImage{status: StatusError, caption: raw.Caption, message: raw.Error}
	default:
		*g = PendingImage(raw.Caption)
	}
	return nil
}
