// Package history keeps the most recent finished generation sessions,
// newest first, persisted under a single store key.
package history

import (
	"context"
	"fmt"
	"sync"

	"alterego/logging"
	"alterego/models"
	"alterego/store"

	"go.uber.org/zap"
)

// MaxEntries is how many sessions are retained.
const MaxEntries = 5

// History is safe for concurrent use.
type History struct {
	mu      sync.Mutex
	store   store.Store
	logger  *logging.Logger
	entries []models.HistorySession
}

// New hydrates from s. Unreadable data yields an empty history.
func New(ctx context.Context, s store.Store, logger *logging.Logger) *History {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &History{store: s, logger: logger.Named("history")}

	var entries []models.HistorySession
	if _, err := store.GetJSON(ctx, s, store.KeyHistory, &entries); err != nil {
		h.logger.Warn("Stored history unreadable, starting empty", zap.Error(err))
		entries = nil
	}
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	h.entries = entries
	return h
}

// Append prepends session and truncates to MaxEntries. The timestamp is
// bumped if needed so timestamps stay strictly decreasing down the list.
// The stored entry is returned. A persist failure is returned but the
// in-memory list keeps the entry.
func (h *History) Append(ctx context.Context, session models.HistorySession) (models.HistorySession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := session.Clone()
	if len(h.entries) > 0 && entry.Timestamp <= h.entries[0].Timestamp {
		entry.Timestamp = h.entries[0].Timestamp + 1
	}

	next := make([]models.HistorySession, 0, MaxEntries)
	next = append(next, entry)
	next = append(next, h.entries...)
	if len(next) > MaxEntries {
		next = next[:MaxEntries]
	}
	h.entries = next

	if err := store.PutJSON(ctx, h.store, store.KeyHistory, h.entries); err != nil {
		h.logger.Error("Failed to persist history", zap.Error(err))
		return entry.Clone(), fmt.Errorf("history: persist: %w", err)
	}
	h.logger.Debug("Session archived", zap.Int64("timestamp", entry.Timestamp), zap.Int("images", len(entry.Images)))
	return entry.Clone(), nil
}

// List returns copies of all entries, newest first.
func (h *History) List() []models.HistorySession {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.HistorySession, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Latest returns the newest entry.
func (h *History) Latest() (models.HistorySession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return models.HistorySession{}, false
	}
	return h.entries[0].Clone(), true
}

// Get finds an entry by timestamp.
func (h *History) Get(timestamp int64) (models.HistorySession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		if e.Timestamp == timestamp {
			return e.Clone(), true
		}
	}
	return models.HistorySession{}, false
}

// Clear removes every entry.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	if err := h.store.Delete(ctx, store.KeyHistory); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}
