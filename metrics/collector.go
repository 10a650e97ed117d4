package metrics

// Collector is what the orchestrator and web surface need from the task store.
type Collector interface {
	RecordTask(task TaskRecord)
	GetTaskMetrics() TaskMetrics
	GetRecentTasks(limit int) []TaskRecord
	GetSystemStatus() SystemStatus
}
