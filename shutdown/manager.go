package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"alterego/core"
	"alterego/logging"

	"go.uber.org/zap"
)

// ErrShuttingDown is returned by WrapOperation once shutdown has begun.
var ErrShuttingDown = errors.New("shutdown in progress")

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 30 * time.Second

// Manager ties the tracker, the registry and signal handling together.
//
// Usage:
//
//	m := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
//	m.Register("database", shutdown.PriorityStorage, func(ctx context.Context) error {
//	    return database.Close()
//	})
//	m.Start()
//	<-m.Context().Done()
//	err := m.Shutdown(context.Background())
type Manager struct {
	logger    *logging.Logger
	timeout   time.Duration
	forceExit func()
	mu        sync.Mutex
	started   bool
	shutdown  bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal
	stopped  chan struct{}
	finished chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the shutdown deadline. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithParent derives the managed context from parent, so cancelling parent
// also starts shutdown.
func WithParent(parent context.Context) Option {
	return func(m *Manager) {
		m.cancel()
		m.ctx, m.cancel = context.WithCancel(parent)
	}
}

// WithForceExit replaces the action taken on the second signal.
func WithForceExit(fn func()) Option {
	return func(m *Manager) {
		m.forceExit = fn
	}
}

// NewManager creates a Manager. A nil logger discards output.
func NewManager(logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  DefaultTimeout,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 2),
		stopped:  make(chan struct{}),
		finished: make(chan struct{}),
	}
	m.forceExit = func() { os.Exit(core.ExitCodeSIGINT) }
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("Received second signal, forcing exit")
		_ = m.logger.Sync()
		m.forceExit()
	})
	return m
}

// Context is cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Tracker returns the tracker in-flight generation runs register with.
func (m *Manager) Tracker() *OperationTracker {
	return m.tracker
}

// Register adds a cleanup handler; lower priority runs first.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered shutdown handler", zap.String("name", name), zap.Int("priority", priority))
}

// RegisteredHandlers returns handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}

// Start listens for SIGINT and SIGTERM. The first signal cancels Context,
// the second calls the force exit action. Repeated calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-m.sigChan:
				m.handleSignal(sig)
			case <-m.stopped:
				return
			}
		}
	}()
	m.logger.Debug("Listening for shutdown signals")
}

func (m *Manager) handleSignal(sig os.Signal) {
	if m.signals.Increment() == 1 {
		m.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		m.cancel()
	}
}

// Trigger starts shutdown as if a signal arrived.
func (m *Manager) Trigger() {
	m.handleSignal(syscall.SIGTERM)
}

// IsShuttingDown reports whether Context has been cancelled.
func (m *Manager) IsShuttingDown() bool {
	return m.ctx.Err() != nil
}

// WrapOperation runs fn as a tracked operation. It fails fast with
// ErrShuttingDown once the tracker is closed.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("Rejected operation during shutdown", zap.String("operation", name))
		return ErrShuttingDown
	}
	defer m.tracker.Done()
	return fn(ctx)
}

// Shutdown closes the tracker, waits for in-flight operations, then runs
// the registered handlers with whatever time is left. Only the first call
// does work; later calls wait for it and return nil.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		<-m.finished
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()
	defer close(m.finished)

	m.cancel()
	if m.started {
		signal.Stop(m.sigChan)
		close(m.stopped)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.logger.Info("Shutting down",
		zap.Duration("timeout", m.timeout),
		zap.Int("handlers", m.registry.Len()),
	)

	m.tracker.Close()
	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("Waiting for in-flight operations", zap.Int64("active", active))
	}
	if err := m.tracker.Wait(ctx); err != nil {
		m.logger.Warn("Timed out waiting for in-flight operations",
			zap.Int64("remaining", m.tracker.ActiveCount()))
	}

	// Handlers get at least one second even when the wait used the budget.
	cleanupCtx := ctx
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < time.Second {
		var cleanupCancel context.CancelFunc
		cleanupCtx, cleanupCancel = context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cleanupCancel()
	}

	err := m.registry.Run(cleanupCtx)
	if err != nil {
		m.logger.Error("Shutdown completed with errors",
			zap.Duration("duration", time.Since(start)), zap.Error(err))
		return err
	}
	m.logger.Info("Shutdown complete", zap.Duration("duration", time.Since(start)))
	return nil
}

// Wait blocks until Context is cancelled, then runs Shutdown.
func (m *Manager) Wait() error {
	<-m.ctx.Done()
	return m.Shutdown(context.Background())
}
