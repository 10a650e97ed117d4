package orchestrator

import (
	"context"
	"sync"

	"alterego/models"
)

// Outcome is how a Run ended.
type Outcome int

const (
	// OutcomeRunning is reported before the run finishes.
	OutcomeRunning Outcome = iota
	// OutcomeCompleted means every item reached a terminal state.
	OutcomeCompleted
	// OutcomeCancelled means CancelBatch, RestoreSession or Close stopped the run.
	OutcomeCancelled
	// OutcomeSuperseded means the session the run wrote to was replaced
	// and its result was dropped.
	OutcomeSuperseded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Run is a handle on a batch or a single regenerate running in the
// background.
type Run struct {
	// ID identifies the run in logs and the activity log
	ID   string
	Kind models.RunKind
	// Styles are the captions processed, in order
	Styles []string
	// Targets[i] is what Styles[i] resolved to
	Targets []string
	// Cost is what the run was priced at; Charged is what the ledger took
	Cost    int
	Charged int

	done    chan struct{}
	mu      sync.Mutex
	outcome Outcome
}

func newRun(id string, kind models.RunKind, styles, targets []string, cost, charged int) *Run {
	return &Run{
		ID:      id,
		Kind:    kind,
		Styles:  styles,
		Targets: targets,
		Cost:    cost,
		Charged: charged,
		done:    make(chan struct{}),
	}
}

// Done is closed when the background work has finished, including
// archiving a completed batch.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome returns how the run ended, or OutcomeRunning.
func (r *Run) Outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// setOutcome records the first terminal outcome only.
func (r *Run) setOutcome(o Outcome) {
	r.mu.Lock()
	if r.outcome == OutcomeRunning {
		r.outcome = o
	}
	r.mu.Unlock()
}

func (r *Run) finish() {
	r.setOutcome(OutcomeCompleted)
	close(r.done)
}
