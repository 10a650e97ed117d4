package webui

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"alterego/credits"
	"alterego/favorites"
	"alterego/history"
	"alterego/imagegen"
	"alterego/metrics"
	"alterego/models"
	"alterego/orchestrator"
	"alterego/store"
	"alterego/styles"

	"github.com/goccy/go-json"
)

type fakeTransformer func(ctx context.Context, req imagegen.TransformRequest) (models.ImageHandle, error)

func (f fakeTransformer) Transform(ctx context.Context, req imagegen.TransformRequest) (models.ImageHandle, error) {
	return f(ctx, req)
}

func echo() fakeTransformer {
	return func(ctx context.Context, req imagegen.TransformRequest) (models.ImageHandle, error) {
		return models.NewDataURL("image/png", []byte("out:"+req.StyleLabel)), nil
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type testEnv struct {
	orch    *orchestrator.Orchestrator
	ledger  *credits.Ledger
	metrics *metrics.Metrics
	server  *Server
	http    *httptest.Server
	token   string
}

type envOption func(*ServerConfig, *Deps)

func withToken(token string) envOption {
	return func(c *ServerConfig, _ *Deps) { c.APIToken = token }
}

func newEnv(t *testing.T, tr imagegen.Transformer, startingCredits int, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	ledger := credits.NewLedger(ctx, st, nil, credits.Config{StartingCredits: startingCredits})
	m := metrics.New(metrics.DefaultStoreConfig())
	orch, err := orchestrator.New(orchestrator.Config{
		Catalog:     styles.Default(),
		Transformer: tr,
		Ledger:      ledger,
		History:     history.New(ctx, st, nil),
		Favorites:   favorites.New(ctx, st, nil),
		Provider:    "test",
		Metrics:     m,
	})
	if err != nil {
		t.Fatal(err)
	}

	config := DefaultServerConfig()
	config.Provider = "test"
	deps := Deps{Orchestrator: orch, Metrics: m, Backend: tr}
	for _, opt := range opts {
		opt(&config, &deps)
	}
	srv, err := NewServer(config, deps)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = orch.Close()
	})
	return &testEnv{orch: orch, ledger: ledger, metrics: m, server: srv, http: ts, token: config.APIToken}
}

// do sends a request with an optional JSON body and returns the response
// with its body read.
func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.http.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func (e *testEnv) upload(t *testing.T) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/session/image",
		map[string]any{"imageDataUrl": models.NewDataURL("image/png", pngBytes(t))})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d: %s", resp.StatusCode, body)
	}
}

func (e *testEnv) waitState(t *testing.T, want models.AppState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for e.orch.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", e.orch.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %q: %v", truncate(string(data)), err)
	}
	return v
}

func truncate(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return strings.TrimSpace(s)
}
