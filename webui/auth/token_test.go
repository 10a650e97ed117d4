package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := HashTokenWithCost("s3cret", MinCost)
	if err != nil {
		t.Fatalf("HashTokenWithCost: %v", err)
	}
	if !IsValidHash(hash) {
		t.Fatal("hash is not valid bcrypt")
	}
	if err := VerifyToken("s3cret", hash); err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if err := VerifyToken("wrong", hash); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("VerifyToken(wrong) = %v", err)
	}
	if err := VerifyToken("s3cret", "not-a-hash"); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("VerifyToken(bad hash) = %v", err)
	}
	if _, err := HashToken(""); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("HashToken empty = %v", err)
	}
	if _, err := HashTokenWithCost("x", 4); err == nil {
		t.Fatal("expected cost error")
	}
}

func TestNewAuthenticator(t *testing.T) {
	if _, err := NewAuthenticator(""); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("empty = %v", err)
	}

	hash, err := HashTokenWithCost("from-hash", MinCost)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name       string
		configured string
		good       string
	}{
		{"plaintext", "plain-token", "plain-token"},
		{"bcrypt hash", hash, "from-hash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAuthenticator(tt.configured)
			if err != nil {
				t.Fatalf("NewAuthenticator: %v", err)
			}
			if !a.Check(tt.good) || !a.Check(tt.good) {
				t.Fatal("valid token rejected")
			}
			if a.Check("nope") || a.Check("") {
				t.Fatal("invalid token accepted")
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	a, err := NewAuthenticator("tok")
	if err != nil {
		t.Fatal(err)
	}
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"bearer", "/api/session", "Bearer tok", http.StatusNoContent},
		{"lowercase scheme", "/api/session", "bearer tok", http.StatusNoContent},
		{"query token", "/ws?access_token=tok", "", http.StatusNoContent},
		{"wrong token", "/api/session", "Bearer bad", http.StatusUnauthorized},
		{"basic scheme", "/api/session", "Basic tok", http.StatusUnauthorized},
		{"missing", "/api/session", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("missing WWW-Authenticate")
			}
		})
	}
}
