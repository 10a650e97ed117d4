package shutdown

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"alterego/core"
)

// Shutdown priorities used by the serve command. Lower runs first.
const (
	PriorityHTTP         = 10 // stop accepting requests
	PriorityOrchestrator = 20 // refund and stop runs, close subscriptions
	PriorityWriters      = 25 // drain the activity writer
	PriorityStorage      = 30 // close the database
	PriorityFiles        = 40 // remove staged temp files
	PriorityLogs         = 50 // flush logs last
)

type entry struct {
	name     string
	priority int
	seq      int
	fn       core.ShutdownFunc
}

// Registry holds cleanup handlers. Handlers with equal priority run in
// registration order.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds fn. Registration after Run is ignored.
func (r *Registry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{name: name, priority: priority, seq: len(r.entries), fn: fn})
}

func (r *Registry) sortedLocked() []entry {
	sorted := slices.Clone(r.entries)
	slices.SortFunc(sorted, func(a, b entry) int {
		if c := cmp.Compare(a.priority, b.priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return sorted
}

// Run calls every handler once, in order, even when some fail. The
// returned error joins each failure prefixed with its handler name.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	var errs []error
	for _, e := range sorted {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

// Names returns handler names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := r.sortedLocked()
	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.name
	}
	return names
}

// Len returns the number of handlers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
