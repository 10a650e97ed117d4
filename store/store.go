// Package store is the key/value persistence used by the credit ledger,
// history and favorites. Values are opaque bytes; GetJSON and PutJSON add
// the JSON encoding every caller uses.
package store

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Keys used by the application.
const (
	KeyCredits   = "credits"
	KeyPro       = "isPro"
	KeyHistory   = "history"
	KeyFavorites = "favorites"
	KeyWelcomed  = "hasWelcomed"
)

// Store is a durable string-keyed blob store.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes the value under key into out. It reports false, nil when
// the key is absent; decode failures are returned as errors.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("store: decode %q: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	return s.Put(ctx, key, data)
}
