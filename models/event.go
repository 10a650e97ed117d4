package models

import "time"

// RunKind distinguishes batch items from single-item retries.
type RunKind string

const (
	RunBatch      RunKind = "batch"
	RunRegenerate RunKind = "regenerate"
)

// Outcome values recorded for a transform call.
const (
	OutcomeDone      = "done"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// TransformEvent is one entry of the activity log: a single transform call
// and how it ended. Style is the caption the user picked; Target is what the
// wildcard resolved to (equal to Style otherwise).
type TransformEvent struct {
	ID           int64     `json:"id,omitempty"`
	RunID        string    `json:"runId"`
	Kind         RunKind   `json:"kind"`
	Style        string    `json:"style"`
	Target       string    `json:"target"`
	Provider     string    `json:"provider"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error,omitempty"`
	DurationMS   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}
