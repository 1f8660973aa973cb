// Package metrics keeps in-memory counters for the /status endpoint: recent
// task records, per-type aggregates and the latest GPU sample.
package metrics

import "time"

// TaskRecord is one finished operation.
type TaskRecord struct {
	// ID is the request id the operation ran under.
	ID string `json:"id"`

	// Type is TaskTypeGenerate or TaskTypeDelete.
	Type string `json:"type"`

	// Model is the catalog id used by a generate task.
	Model string `json:"model,omitempty"`

	// Images is the number of images a generate task produced.
	Images int `json:"images"`

	Status    string        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`

	// ErrorKind classifies a failure ("not_found", "load_error", ...).
	ErrorKind string `json:"error_kind,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// GPUMetrics is one nvidia-smi sample. Memory values are bytes.
type GPUMetrics struct {
	Utilization float64 `json:"utilization"`
	Temperature float64 `json:"temperature"`
	MemoryTotal int64   `json:"memory_total"`
	MemoryUsed  int64   `json:"memory_used"`
	MemoryFree  int64   `json:"memory_free"`
}

// SystemStatus is the overall service health.
type SystemStatus struct {
	// Health is SystemHealthRunning, or SystemHealthError after
	// UnhealthyStreak consecutive failed generations.
	Health  string `json:"health"`
	Version string `json:"version"`

	// Device is the compute device inference runs on ("cuda" or "cpu").
	Device string `json:"device"`

	Uptime    time.Duration `json:"uptime"`
	LastCheck time.Time     `json:"last_check"`
}

// TaskMetrics aggregates every recorded task.
type TaskMetrics struct {
	TotalProcessed int64                       `json:"total_processed"`
	TotalSuccess   int64                       `json:"total_success"`
	TotalErrors    int64                       `json:"total_errors"`
	TotalImages    int64                       `json:"total_images"`
	ByType         map[string]*TaskTypeMetrics `json:"by_type"`
}

// TaskTypeMetrics aggregates the tasks of one type.
type TaskTypeMetrics struct {
	Count       int64         `json:"count"`
	SuccessRate float64       `json:"success_rate"` // 0-100
	AvgDuration time.Duration `json:"avg_duration"`
}

// Status constants for TaskRecord
const (
	TaskStatusSuccess = "success"
	TaskStatusError   = "error"
)

// Health constants for SystemStatus
const (
	SystemHealthRunning = "running"
	SystemHealthError   = "error"
)

// Task type constants
const (
	TaskTypeGenerate = "generate"
	TaskTypeDelete   = "delete"
)

// UnhealthyStreak is the number of consecutive failed generations after
// which the service reports SystemHealthError.
const UnhealthyStreak = 3
