package metrics

import (
	"sync"
	"time"
)

// MetricsStore is an in-memory ring of recent tasks plus running totals.
// It is safe for concurrent use.
//
// Usage:
//
//	store := NewMetricsStore(DefaultStoreConfig(), time.Now())
//	store.RecordTask(task)
//	m := store.GetTaskMetrics()
type MetricsStore struct {
	mu sync.RWMutex

	taskHistory []TaskRecord
	taskCap     int
	taskHead    int
	taskSize    int

	totalTasks     int64
	totalSuccess   int64
	totalErrors    int64
	totalCancelled int64
	byStyle        map[string]*styleStats

	startTime time.Time
	version   string
	provider  string
}

type styleStats struct {
	count         int64
	successCount  int64
	totalDuration time.Duration
}

// StoreConfig configures the MetricsStore.
type StoreConfig struct {
	// TaskHistoryCapacity is the max number of tasks to retain
	TaskHistoryCapacity int
	// Version is reported in SystemStatus
	Version string
	// Provider is reported in SystemStatus
	Provider string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TaskHistoryCapacity: 100,
		Version:             "dev",
	}
}

// NewMetricsStore creates a store. startTime is used for uptime.
func NewMetricsStore(config StoreConfig, startTime time.Time) *MetricsStore {
	capacity := config.TaskHistoryCapacity
	if capacity < 1 {
		capacity = 100
	}
	return &MetricsStore{
		taskHistory: make([]TaskRecord, capacity),
		taskCap:     capacity,
		byStyle:     make(map[string]*styleStats),
		startTime:   startTime,
		version:     config.Version,
		provider:    config.Provider,
	}
}

// RecordTask adds a finished task.
func (s *MetricsStore) RecordTask(task TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskHistory[s.taskHead] = task
	s.taskHead = (s.taskHead + 1) % s.taskCap
	if s.taskSize < s.taskCap {
		s.taskSize++
	}

	s.totalTasks++
	switch task.Status {
	case TaskStatusSuccess:
		s.totalSuccess++
	case TaskStatusError:
		s.totalErrors++
	case TaskStatusCancelled:
		s.totalCancelled++
	}

	key := task.Target
	if key == "" {
		key = task.Style
	}
	stats, ok := s.byStyle[key]
	if !ok {
		stats = &styleStats{}
		s.byStyle[key] = stats
	}
	stats.count++
	if task.Status == TaskStatusSuccess {
		stats.successCount++
	}
	stats.totalDuration += task.Duration
}

// GetTaskMetrics returns the aggregates.
func (s *MetricsStore) GetTaskMetrics() TaskMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := TaskMetrics{
		TotalProcessed: s.totalTasks,
		TotalSuccess:   s.totalSuccess,
		TotalErrors:    s.totalErrors,
		TotalCancelled: s.totalCancelled,
		ByStyle:        make(map[string]*StyleTaskMetrics, len(s.byStyle)),
	}
	for style, stats := range s.byStyle {
		m.ByStyle[style] = &StyleTaskMetrics{
			Count:       stats.count,
			SuccessRate: float64(stats.successCount) / float64(stats.count) * 100,
			AvgDuration: stats.totalDuration / time.Duration(stats.count),
		}
	}
	return m
}

// GetRecentTasks returns up to limit tasks, newest first.
func (s *MetricsStore) GetRecentTasks(limit int) []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentLocked(limit)
}

func (s *MetricsStore) recentLocked(limit int) []TaskRecord {
	if limit <= 0 || s.taskSize == 0 {
		return []TaskRecord{}
	}
	limit = min(limit, s.taskSize)

	result := make([]TaskRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.taskHead - 1 - i + s.taskCap) % s.taskCap
		result[i] = s.taskHistory[idx]
	}
	return result
}

// GetSystemStatus reports degraded when most recent tasks failed.
func (s *MetricsStore) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	recent := s.recentLocked(degradedWindow)
	var failed int
	for _, t := range recent {
		if t.Status == TaskStatusError {
			failed++
		}
	}
	if len(recent) > 0 && float64(failed)/float64(len(recent)) > degradedThreshold {
		health = SystemHealthDegraded
	}

	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Provider:  s.provider,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
	}
}

var _ Collector = (*MetricsStore)(nil)
