package metrics

// MetricsCollector is what the HTTP layer and the generation observers need
// from a metrics backend. Implementations must be safe for concurrent use
// and return zero values for metrics they have not seen.
type MetricsCollector interface {
	// RecordTask adds a finished task to the history and aggregates.
	RecordTask(task TaskRecord)

	// GetTaskMetrics returns aggregated task statistics.
	GetTaskMetrics() TaskMetrics

	// GetRecentTasks returns up to limit records, newest first.
	GetRecentTasks(limit int) []TaskRecord

	UpdateGPUMetrics(gpu GPUMetrics)
	GetGPUMetrics() GPUMetrics

	// GetSystemStatus reports health, version and uptime.
	GetSystemStatus() SystemStatus
}
