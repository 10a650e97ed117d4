// Package metrics records transform activity twice: an in-memory store of
// recent tasks and aggregates that backs the status API, and Prometheus
// collectors scraped from /metrics.
package metrics

import "time"

// TaskRecord is one finished transform call.
type TaskRecord struct {
	// ID is the run the call belonged to
	ID string `json:"id"`

	// Kind is "batch" or "regenerate"
	Kind string `json:"kind"`

	// Style is the caption the user selected; Target is what it resolved to
	Style  string `json:"style"`
	Target string `json:"target"`

	// Provider is the backend name (gemini, openai, http)
	Provider string `json:"provider"`

	// Status is one of the TaskStatus constants
	Status string `json:"status"`

	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`

	// ErrorMsg contains the failure message if Status is "error"
	ErrorMsg string `json:"error_msg,omitempty"`
}

// TaskMetrics aggregates every task recorded since start.
type TaskMetrics struct {
	TotalProcessed int64                        `json:"total_processed"`
	TotalSuccess   int64                        `json:"total_success"`
	TotalErrors    int64                        `json:"total_errors"`
	TotalCancelled int64                        `json:"total_cancelled"`
	ByStyle        map[string]*StyleTaskMetrics `json:"by_style"`
}

// StyleTaskMetrics is the per-target breakdown.
type StyleTaskMetrics struct {
	Count       int64         `json:"count"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// SystemStatus summarises service health.
type SystemStatus struct {
	// Health is one of the SystemHealth constants
	Health    string        `json:"health"`
	Version   string        `json:"version"`
	Provider  string        `json:"provider"`
	Uptime    time.Duration `json:"uptime"`
	LastCheck time.Time     `json:"last_check"`
}

// Status constants for TaskRecord
const (
	TaskStatusSuccess   = "success"
	TaskStatusError     = "error"
	TaskStatusCancelled = "cancelled"
)

// Health constants for SystemStatus
const (
	SystemHealthRunning  = "running"
	SystemHealthDegraded = "degraded"
)

// degradedThreshold is the share of failures among the recent window that
// flips health to degraded.
const degradedThreshold = 0.5

// degradedWindow is how many recent tasks the health check looks at.
const degradedWindow = 10
