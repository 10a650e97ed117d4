// Package favorites stores the results the user has starred, keyed by
// image handle.
package favorites

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"alterego/logging"
	"alterego/models"
	"alterego/store"

	"go.uber.org/zap"
)

// record is the persisted form of one favorite. Seq preserves insertion
// order across reloads; the JSON object itself is unordered.
type record struct {
	models.FavoriteEntry
	Seq int64 `json:"addedAt"`
}

// Favorites is safe for concurrent use.
type Favorites struct {
	mu      sync.Mutex
	store   store.Store
	logger  *logging.Logger
	entries map[models.ImageHandle]record
	nextSeq int64
}

// New hydrates from s. Unreadable data yields an empty set.
func New(ctx context.Context, s store.Store, logger *logging.Logger) *Favorites {
	if logger == nil {
		logger = logging.NewNop()
	}
	f := &Favorites{
		store:   s,
		logger:  logger.Named("favorites"),
		entries: make(map[models.ImageHandle]record),
	}

	stored := map[models.ImageHandle]record{}
	if _, err := store.GetJSON(ctx, s, store.KeyFavorites, &stored); err != nil {
		f.logger.Warn("Stored favorites unreadable, starting empty", zap.Error(err))
		return f
	}
	for url, r := range stored {
		r.Image = url
		f.entries[url] = r
		f.nextSeq = max(f.nextSeq, r.Seq+1)
	}
	return f
}

// Toggle removes image if present, otherwise adds it. It reports whether
// the image is now a favorite. On persist failure the in-memory change
// is kept and the error returned.
func (f *Favorites) Toggle(ctx context.Context, image models.ImageHandle, caption string, original models.ImageHandle) (bool, error) {
	if image == "" {
		return false, fmt.Errorf("favorites: empty image handle")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	_, exists := f.entries[image]
	if exists {
		delete(f.entries, image)
	} else {
		f.entries[image] = record{
			FavoriteEntry: models.FavoriteEntry{Image: image, Caption: caption, Original: original},
			Seq:           f.nextSeq,
		}
		f.nextSeq++
	}

	if err := store.PutJSON(ctx, f.store, store.KeyFavorites, f.entries); err != nil {
		f.logger.Error("Failed to persist favorites", zap.Error(err))
		return !exists, fmt.Errorf("favorites: persist: %w", err)
	}
	return !exists, nil
}

// IsFavorite reports whether image is starred.
func (f *Favorites) IsFavorite(image models.ImageHandle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[image]
	return ok
}

// List returns every favorite in the order it was added.
func (f *Favorites) List() []models.FavoriteEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	records := make([]record, 0, len(f.entries))
	for _, r := range f.entries {
		records = append(records, r)
	}
	slices.SortFunc(records, func(a, b record) int {
		return cmp.Or(cmp.Compare(a.Seq, b.Seq), cmp.Compare(a.Image, b.Image))
	})

	out := make([]models.FavoriteEntry, len(records))
	for i, r := range records {
		out[i] = r.FavoriteEntry
	}
	return out
}

// Len returns the number of favorites.
func (f *Favorites) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
