package models

import (
	"fmt"
	"maps"
	"slices"
)

// AppState is the orchestrator's lifecycle state.
type AppState int

const (
	StateIdle AppState = iota
	StateImageUploaded
	StateGenerating
	StateResultsShown
)

func (s AppState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateImageUploaded:
		return "image-uploaded"
	case StateGenerating:
		return "generating"
	case StateResultsShown:
		return "results-shown"
	default:
		return "unknown"
	}
}

// MarshalText makes AppState render as its name in JSON.
func (s AppState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (s *AppState) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateResultsShown; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown app state %q", text)
}

// Session is the orchestrator's working set. Images is keyed by the
// original style caption, so the wildcard stays under "Surprise Me!"
// whatever it resolved to.
type Session struct {
	SourceImage    ImageHandle               `json:"sourceImage"`
	SelectedStyles []string                  `json:"selectedStyles"`
	Images         map[string]GeneratedImage `json:"images"`
}

// Clone returns a copy sharing nothing with s. GeneratedImage is a value
// type, so copying the map is a deep copy.
func (s Session) Clone() Session {
	out := Session{
		SourceImage:    s.SourceImage,
		SelectedStyles: slices.Clone(s.SelectedStyles),
		Images:         maps.Clone(s.Images),
	}
	if out.Images == nil {
		out.Images = map[string]GeneratedImage{}
	}
	return out
}

// AllTerminal reports whether there is at least one item and none is pending.
func (s Session) AllTerminal() bool {
	if len(s.Images) == 0 {
		return false
	}
	for _, img := range s.Images {
		if !img.IsTerminal() {
			return false
		}
	}
	return true
}

// DoneImages returns the finished items in selection order, followed by
// any finished items not in the selection (as found in restored sessions)
// sorted by key.
func (s Session) DoneImages() []GeneratedImage {
	var out []GeneratedImage
	seen := make(map[string]bool, len(s.Images))
	for _, k := range s.SelectedStyles {
		seen[k] = true
		if img, ok := s.Images[k]; ok && img.Status() == StatusDone {
			out = append(out, img)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(s.Images)) {
		if img := s.Images[k]; !seen[k] && img.Status() == StatusDone {
			out = append(out, img)
		}
	}
	return out
}

// HistorySession is an archived, immutable snapshot of a finished batch.
// Timestamp is Unix milliseconds and identifies the entry.
type HistorySession struct {
	SourceImage ImageHandle               `json:"uploadedImage"`
	Images      map[string]GeneratedImage `json:"generatedImages"`
	Timestamp   int64                     `json:"timestamp"`
}

// Clone returns an independent copy.
func (h HistorySession) Clone() HistorySession {
	return HistorySession{
		SourceImage: h.SourceImage,
		Images:      maps.Clone(h.Images),
		Timestamp:   h.Timestamp,
	}
}

// FavoriteEntry is a favorited result, keyed by its image handle.
type FavoriteEntry struct {
	Image    ImageHandle `json:"url"`
	Caption  string      `json:"caption"`
	Original ImageHandle `json:"originalUrl"`
}
