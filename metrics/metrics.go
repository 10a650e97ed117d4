package metrics

import (
	"time"
)

// Metrics bundles the task store and the Prometheus collectors behind the
// calls the orchestrator makes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Store Collector
	Prom  *Prometheus
}

// New builds both halves.
func New(config StoreConfig) *Metrics {
	return &Metrics{
		Store: NewMetricsStore(config, time.Now()),
		Prom:  NewPrometheus(),
	}
}

// RecordTransform records one finished transform call.
func (m *Metrics) RecordTransform(task TaskRecord) {
	if m == nil {
		return
	}
	if m.Store != nil {
		m.Store.RecordTask(task)
	}
	if m.Prom != nil {
		m.Prom.transforms.WithLabelValues(task.Provider, task.Kind, task.Status).Inc()
		if task.Status != TaskStatusCancelled {
			m.Prom.transformDuration.WithLabelValues(task.Provider).Observe(task.Duration.Seconds())
		}
	}
}

// Batch outcomes.
const (
	BatchStarted   = "started"
	BatchCompleted = "completed"
	BatchCancelled = "cancelled"
	BatchRefused   = "refused"
)

// RecordBatch counts a batch lifecycle event.
func (m *Metrics) RecordBatch(outcome string) {
	if m == nil || m.Prom == nil {
		return
	}
	m.Prom.batches.WithLabelValues(outcome).Inc()
}

// RecordDebit counts credits spent.
func (m *Metrics) RecordDebit(n int) {
	if m == nil || m.Prom == nil || n <= 0 {
		return
	}
	m.Prom.creditsDebited.Add(float64(n))
}

// RecordRefund counts credits returned.
func (m *Metrics) RecordRefund(n int) {
	if m == nil || m.Prom == nil || n <= 0 {
		return
	}
	m.Prom.creditsRefunded.Add(float64(n))
}

// SetBalance publishes the ledger balance.
func (m *Metrics) SetBalance(balance int) {
	if m == nil || m.Prom == nil {
		return
	}
	m.Prom.creditBalance.Set(float64(balance))
}

// SetSubscribers publishes the number of snapshot subscribers.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil || m.Prom == nil {
		return
	}
	m.Prom.subscribers.Set(float64(n))
}
