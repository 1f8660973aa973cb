package metrics

import (
	"sync"
	"time"
)

// MetricsStore is the in-memory MetricsCollector. Recent tasks live in a
// fixed-size ring buffer; the aggregates cover every task ever recorded.
//
// Usage:
//
//	store := NewMetricsStore(DefaultStoreConfig(), time.Now())
//	store.RecordTask(task)
//	summary := store.GetTaskMetrics()
type MetricsStore struct {
	mu sync.RWMutex

	// Ring buffer of recent tasks
	taskHistory []TaskRecord
	taskCap     int
	taskHead    int // next write index
	taskSize    int

	totalTasks   int64
	totalSuccess int64
	totalErrors  int64
	totalImages  int64
	taskByType   map[string]*taskTypeStats

	// failedStreak counts consecutive failed generate tasks.
	failedStreak int

	gpuMetrics GPUMetrics

	startTime time.Time
	version   string
	device    string
	now       func() time.Time
}

type taskTypeStats struct {
	count         int64
	successCount  int64
	totalDuration time.Duration
}

// StoreConfig configures the MetricsStore.
type StoreConfig struct {
	// TaskHistoryCapacity is the max number of tasks kept for GetRecentTasks
	TaskHistoryCapacity int
	Version             string
	Device              string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TaskHistoryCapacity: 100,
		Version:             "0.0.0",
		Device:              "cpu",
	}
}

// NewMetricsStore creates a store. startTime is the base for uptime.
func NewMetricsStore(config StoreConfig, startTime time.Time) *MetricsStore {
	capacity := config.TaskHistoryCapacity
	if capacity < 1 {
		capacity = 100
	}

	return &MetricsStore{
		taskHistory: make([]TaskRecord, capacity),
		taskCap:     capacity,
		taskByType:  make(map[string]*taskTypeStats),
		startTime:   startTime,
		version:     config.Version,
		device:      config.Device,
		now:         time.Now,
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
	s.totalImages += int64(task.Images)
	switch task.Status {
	case TaskStatusSuccess:
		s.totalSuccess++
	case TaskStatusError:
		s.totalErrors++
	}

	if task.Type == TaskTypeGenerate {
		if task.Status == TaskStatusError {
			s.failedStreak++
		} else {
			s.failedStreak = 0
		}
	}

	stats, ok := s.taskByType[task.Type]
	if !ok {
		stats = &taskTypeStats{}
		s.taskByType[task.Type] = stats
	}
	stats.count++
	if task.Status == TaskStatusSuccess {
		stats.successCount++
	}
	stats.totalDuration += task.Duration
}

// GetTaskMetrics returns aggregated task statistics.
func (s *MetricsStore) GetTaskMetrics() TaskMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := TaskMetrics{
		TotalProcessed: s.totalTasks,
		TotalSuccess:   s.totalSuccess,
		TotalErrors:    s.totalErrors,
		TotalImages:    s.totalImages,
		ByType:         make(map[string]*TaskTypeMetrics, len(s.taskByType)),
	}

	for taskType, stats := range s.taskByType {
		m := &TaskTypeMetrics{Count: stats.count}
		if stats.count > 0 {
			m.SuccessRate = float64(stats.successCount) / float64(stats.count) * 100
			m.AvgDuration = stats.totalDuration / time.Duration(stats.count)
		}
		metrics.ByType[taskType] = m
	}

	return metrics
}

// GetRecentTasks returns up to limit records, newest first.
func (s *MetricsStore) GetRecentTasks(limit int) []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.taskSize == 0 {
		return []TaskRecord{}
	}
	if limit > s.taskSize {
		limit = s.taskSize
	}

	result := make([]TaskRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.taskHead - 1 - i + s.taskCap) % s.taskCap
		result[i] = s.taskHistory[idx]
	}
	return result
}

// UpdateGPUMetrics replaces the GPU snapshot.
func (s *MetricsStore) UpdateGPUMetrics(gpu GPUMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gpuMetrics = gpu
}

// GetGPUMetrics returns the latest GPU snapshot.
func (s *MetricsStore) GetGPUMetrics() GPUMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gpuMetrics
}

// GetSystemStatus reports the service health.
func (s *MetricsStore) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	if s.failedStreak >= UnhealthyStreak {
		health = SystemHealthError
	}

	now := s.now()
	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Device:    s.device,
		Uptime:    now.Sub(s.startTime),
		LastCheck: now,
	}
}

var _ MetricsCollector = (*MetricsStore)(nil)
