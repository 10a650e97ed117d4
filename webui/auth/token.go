// Package auth guards the web API with a shared bearer token. The
// configured token is held only as a bcrypt hash.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is used by HashToken for hashes printed by the CLI.
	DefaultCost = 12

	// MinCost is the lowest accepted cost. Plaintext tokens from the
	// environment are hashed at this cost at startup.
	MinCost = 10
)

var (
	ErrEmptyToken    = errors.New("token cannot be empty")
	ErrTokenMismatch = errors.New("token does not match")
	ErrInvalidHash   = errors.New("invalid token hash format")
	ErrCostTooLow    = errors.New("hash cost is below minimum acceptable value")
)

// HashToken returns a bcrypt hash of token at DefaultCost.
func HashToken(token string) (string, error) {
	return HashTokenWithCost(token, DefaultCost)
}

// HashTokenWithCost returns a bcrypt hash of token at cost.
func HashTokenWithCost(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	if cost < MinCost || cost > bcrypt.MaxCost {
		return "", bcrypt.InvalidCostError(cost)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken compares token against hash. Every failure, including a
// malformed hash, reports ErrTokenMismatch.
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if hash == "" {
		return ErrInvalidHash
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrTokenMismatch
	}
	return nil
}

// IsValidHash reports whether s is a well-formed bcrypt hash.
func IsValidHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// ValidateHashStrength rejects malformed hashes and hashes below MinCost.
func ValidateHashStrength(hash string) error {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return ErrInvalidHash
	}
	if cost < MinCost {
		return ErrCostTooLow
	}
	return nil
}

// Authenticator checks request tokens against one configured token.
// Verified tokens are remembered by SHA-256 digest so bcrypt runs once
// per distinct token, not once per request.
type Authenticator struct {
	hash string

	mu       sync.RWMutex
	verified [][sha256.Size]byte
}

// NewAuthenticator accepts either a bcrypt hash (as printed by
// "alterego token hash") or a plaintext token, which is hashed here.
func NewAuthenticator(configured string) (*Authenticator, error) {
	if configured == "" {
		return nil, ErrEmptyToken
	}
	if IsValidHash(configured) {
		if err := ValidateHashStrength(configured); err != nil {
			return nil, err
		}
		return &Authenticator{hash: configured}, nil
	}
	hash, err := HashTokenWithCost(configured, MinCost)
	if err != nil {
		return nil, err
	}
	return &Authenticator{hash: hash}, nil
}

// Check reports whether token is the configured token.
func (a *Authenticator) Check(token string) bool {
	if token == "" {
		return false
	}
	digest := sha256.Sum256([]byte(token))

	a.mu.RLock()
	for _, d := range a.verified {
		if subtle.ConstantTimeCompare(d[:], digest[:]) == 1 {
			a.mu.RUnlock()
			return true
		}
	}
	a.mu.RUnlock()

	if VerifyToken(token, a.hash) != nil {
		return false
	}
	a.mu.Lock()
	a.verified = append(a.verified, digest)
	a.mu.Unlock()
	return true
}

// RequestToken extracts the token from "Authorization: Bearer ..." or,
// for websocket clients that cannot set headers, the access_token query
// parameter.
func RequestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// Middleware rejects requests without a valid token with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Check(RequestToken(r)) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="alterego"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
