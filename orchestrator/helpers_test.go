package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alterego/credits"
	"alterego/favorites"
	"alterego/history"
	"alterego/imagegen"
	"alterego/models"
	"alterego/store"
	"alterego/styles"
)

const testTimeout = 5 * time.Second

var testSource = models.NewDataURL("image/png", []byte("source-photo"))

func resultFor(req imagegen.TransformRequest) models.ImageHandle {
	return models.NewDataURL("image/png", []byte("result:"+req.StyleLabel))
}

// funcTransformer answers immediately.
type funcTransformer func(ctx context.Context, req imagegen.TransformRequest) (models.ImageHandle, error)

func (f funcTransformer) Transform(ctx context.Context, req imagegen.TransformRequest) (models.ImageHandle, error) {
	return f(ctx, req)
}

func echoTransformer() funcTransformer {
	return func(ctx context.Context, req imagegen.TransformRequest) (models.ImageHandle, error) {
		return resultFor(req), nil
	}
}

// call is one transform waiting for the test to answer it.
type call struct {
	req   imagegen.TransformRequest
	reply chan callResult
}

type callResult struct {
	out models.ImageHandle
	err error
}

func (c *call) succeed() { c.reply <- callResult{out: resultFor(c.req)} }

func (c *call) fail(msg string) { c.reply <- callResult{err: errors.New(msg)} }

// gatedTransformer blocks every call until the test answers it or ctx
// ends. With ignoreCancel set it waits for the answer regardless, which
// models a request that resolves after its batch was cancelled.
type gatedTransformer struct {
	calls        chan *call
	ignoreCancel bool
}

func newGated() *gatedTransformer {
	return &gatedTransformer{calls: make(chan *call, 32)}
}

func (g *gatedTransformer) Transform(ctx context.Context, req imagegen.TransformRequest) (models.ImageHandle, error) {
	c := &call{req: req, reply: make(chan callResult, 1)}
	g.calls <- c
	if g.ignoreCancel {
		r := <-c.reply
		return r.out, r.err
	}
	select {
	case r := <-c.reply:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// next waits for the next call to start.
func (g *gatedTransformer) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a transform call")
		return nil
	}
}

// expectIdle asserts that no further call starts for a short while.
func (g *gatedTransformer) expectIdle(t *testing.T) {
	t.Helper()
	select {
	case c := <-g.calls:
		t.Fatalf("unexpected transform call for %q", c.req.StyleLabel)
	case <-time.After(50 * time.Millisecond):
	}
}

// seqRand returns values in order, cycling, clamped to n.
type seqRand struct {
	mu   sync.Mutex
	vals []int
	i    int
}

func (r *seqRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.vals[r.i%len(r.vals)]
	r.i++
	if v >= n {
		return n - 1
	}
	return v
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []models.TransformEvent
}

func (f *fakeRecorder) RecordTransform(ev models.TransformEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return true
}

func (f *fakeRecorder) all() []models.TransformEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TransformEvent(nil), f.events...)
}

type fakeTracker struct {
	mu     sync.Mutex
	closed bool
	active int
}

func (f *fakeTracker) Start() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.active++
	return true
}

func (f *fakeTracker) Done() {
	f.mu.Lock()
	f.active--
	f.mu.Unlock()
}

func (f *fakeTracker) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type harness struct {
	o       *Orchestrator
	ledger  *credits.Ledger
	history *history.History
	store   *store.MemoryStore
}

// newHarness builds an orchestrator over a memory store with a ledger
// starting at startingCredits.
func newHarness(t *testing.T, tr imagegen.Transformer, startingCredits int, mods ...func(*Config)) *harness {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	ledger := credits.NewLedger(ctx, s, nil, credits.Config{StartingCredits: startingCredits})
	hist := history.New(ctx, s, nil)
	cfg := Config{
		Catalog:     styles.Default(),
		Transformer: tr,
		Ledger:      ledger,
		History:     hist,
		Favorites:   favorites.New(ctx, s, nil),
		Provider:    "fake",
		Rand:        &seqRand{vals: []int{0}},
	}
	for _, m := range mods {
		m(&cfg)
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return &harness{o: o, ledger: ledger, history: hist, store: s}
}

func (h *harness) upload(t *testing.T) {
	t.Helper()
	if err := h.o.UploadImage(testSource); err != nil {
		t.Fatalf("UploadImage() error: %v", err)
	}
}

func wait(t *testing.T, r *Run) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("run %s did not finish: %v", r.ID, err)
	}
}

// eventually polls cond until it holds.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
