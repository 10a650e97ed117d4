package shutdown

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"alterego/logging"

	"go.uber.org/zap/zapcore"
)

func TestOperationTracker(t *testing.T) {
	tr := NewOperationTracker()
	if !tr.Start() || !tr.Start() {
		t.Fatal("Start on open tracker should succeed")
	}
	if got := tr.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount = %d, want 2", got)
	}

	tr.Close()
	if tr.Start() {
		t.Fatal("Start after Close should fail")
	}
	if !tr.IsClosed() {
		t.Fatal("IsClosed = false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tr.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait with active ops = %v, want deadline", err)
	}

	tr.Done()
	tr.Done()
	if err := tr.Wait(context.Background()); err != nil {
		t.Fatalf("Wait = %v", err)
	}
}

func TestRegistry_OrderAndErrors(t *testing.T) {
	r := NewRegistry()
	var order []string
	add := func(name string, priority int, err error) {
		r.Register(name, priority, func(context.Context) error {
			order = append(order, name)
			return err
		})
	}
	add("logs", PriorityLogs, nil)
	add("http", PriorityHTTP, nil)
	add("db", PriorityStorage, errors.New("locked"))
	add("http-2", PriorityHTTP, nil)

	want := []string{"http", "http-2", "db", "logs"}
	if got := r.Names(); !slices.Equal(got, want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}

	err := r.Run(context.Background())
	if err == nil || err.Error() != "db: locked" {
		t.Fatalf("Run error = %v", err)
	}
	if !slices.Equal(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("second Run = %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("handlers ran twice: %v", order)
	}
	r.Register("late", 0, func(context.Context) error { return nil })
	if r.Len() != 4 {
		t.Fatalf("Len = %d after late register", r.Len())
	}
}

func TestSignalCounter(t *testing.T) {
	forced := 0
	s := NewSignalCounter(2, func() { forced++ })
	s.Increment()
	if forced != 0 {
		t.Fatal("forced on first signal")
	}
	s.Increment()
	s.Increment()
	if forced != 1 {
		t.Fatalf("forced = %d, want 1", forced)
	}
	if s.Count() != 3 {
		t.Fatalf("Count = %d", s.Count())
	}

	// without a callback it only counts
	quiet := NewSignalCounter(2, nil)
	for i := 1; i <= 3; i++ {
		if got := quiet.Increment(); got != i {
			t.Fatalf("Increment() = %d, want %d", got, i)
		}
	}
}

func TestManager_ShutdownWaitsForOperations(t *testing.T) {
	logger, logs := logging.NewTestLogger(zapcore.DebugLevel)
	m := NewManager(logger, WithTimeout(time.Second))

	var cleaned atomic.Bool
	m.Register("cleanup", PriorityFiles, func(context.Context) error {
		cleaned.Store(true)
		return nil
	})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = m.WrapOperation(context.Background(), "batch", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan error, 1)
	go func() { done <- m.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Shutdown returned while an operation was running")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Shutdown = %v", err)
	}
	if !cleaned.Load() {
		t.Fatal("cleanup handler did not run")
	}
	if !m.IsShuttingDown() {
		t.Fatal("IsShuttingDown = false after Shutdown")
	}
	if err := m.WrapOperation(context.Background(), "late", func(context.Context) error { return nil }); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("WrapOperation after shutdown = %v", err)
	}
	if logs.FilterMessage("Shutdown complete").Len() != 1 {
		t.Fatal("missing completion log")
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown = %v", err)
	}
}

func TestManager_TriggerAndForce(t *testing.T) {
	var forced atomic.Int32
	m := NewManager(nil, WithForceExit(func() { forced.Add(1) }))
	m.Trigger()
	select {
	case <-m.Context().Done():
	default:
		t.Fatal("Trigger did not cancel context")
	}
	m.Trigger()
	if forced.Load() != 1 {
		t.Fatalf("forced = %d, want 1", forced.Load())
	}
}

func TestManager_WithParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	m := NewManager(nil, WithParent(parent))
	cancel()
	if err := m.Wait(); err != nil {
		t.Fatalf("Wait = %v", err)
	}
}

func TestManager_ShutdownTimeout(t *testing.T) {
	m := NewManager(nil, WithTimeout(20*time.Millisecond))
	if !m.Tracker().Start() {
		t.Fatal("Start failed")
	}
	defer m.Tracker().Done()

	var handlerCtxErr error
	m.Register("check", PriorityFiles, func(ctx context.Context) error {
		handlerCtxErr = ctx.Err()
		return nil
	})
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown = %v", err)
	}
	if handlerCtxErr != nil {
		t.Fatalf("handler got expired context: %v", handlerCtxErr)
	}
}

func TestRemoveStagedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"alterego-source-1.png", "alterego-source-2.jpg", "keep.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "alterego-source-dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	logger, logs := logging.NewTestLogger(zapcore.InfoLevel)
	if err := RemoveStagedFiles(logger, dir, "alterego-source-*")(context.Background()); err != nil {
		t.Fatalf("cleanup = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := []string{"alterego-source-dir", "keep.png"}
	if !slices.Equal(names, want) {
		t.Fatalf("remaining = %v, want %v", names, want)
	}
	if logs.FilterMessage("Removed staged files").Len() != 1 {
		t.Fatal("missing removal log")
	}
}
