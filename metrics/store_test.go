package metrics

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func generateTask(id, status string, d time.Duration, images int) TaskRecord {
	return TaskRecord{
		ID:       id,
		Type:     TaskTypeGenerate,
		Model:    "sd15",
		Images:   images,
		Status:   status,
		Duration: d,
	}
}

func TestNewMetricsStore(t *testing.T) {
	tests := []struct {
		name    string
		config  StoreConfig
		wantCap int
	}{
		{name: "default config", config: DefaultStoreConfig(), wantCap: 100},
		{name: "custom capacity", config: StoreConfig{TaskHistoryCapacity: 5}, wantCap: 5},
		{name: "zero capacity defaults", config: StoreConfig{}, wantCap: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMetricsStore(tt.config, time.Now())
			if store.taskCap != tt.wantCap {
				t.Errorf("taskCap = %d, want %d", store.taskCap, tt.wantCap)
			}
		})
	}
}

func TestMetricsStore_Aggregates(t *testing.T) {
	store := NewMetricsStore(DefaultStoreConfig(), time.Now())

	store.RecordTask(generateTask("a", TaskStatusSuccess, 2*time.Second, 2))
	store.RecordTask(generateTask("b", TaskStatusSuccess, 4*time.Second, 1))
	store.RecordTask(generateTask("c", TaskStatusError, 0, 0))
	store.RecordTask(TaskRecord{ID: "d", Type: TaskTypeDelete, Status: TaskStatusSuccess, Duration: time.Millisecond})

	m := store.GetTaskMetrics()
	if m.TotalProcessed != 4 || m.TotalSuccess != 3 || m.TotalErrors != 1 || m.TotalImages != 3 {
		t.Errorf("totals = %+v", m)
	}

	gen := m.ByType[TaskTypeGenerate]
	if gen == nil {
		t.Fatal("missing generate aggregate")
	}
	if gen.Count != 3 {
		t.Errorf("generate count = %d, want 3", gen.Count)
	}
	if gen.AvgDuration != 2*time.Second {
		t.Errorf("generate avg = %v, want 2s", gen.AvgDuration)
	}
	if want := 200.0 / 3; gen.SuccessRate < want-0.01 || gen.SuccessRate > want+0.01 {
		t.Errorf("generate success rate = %v, want %v", gen.SuccessRate, want)
	}

	del := m.ByType[TaskTypeDelete]
	if del == nil || del.Count != 1 || del.SuccessRate != 100 {
		t.Errorf("delete aggregate = %+v", del)
	}
}

func TestMetricsStore_GetRecentTasks(t *testing.T) {
	store := NewMetricsStore(StoreConfig{TaskHistoryCapacity: 3}, time.Now())
	for i := 1; i <= 5; i++ {
		store.RecordTask(generateTask(fmt.Sprintf("t%d", i), TaskStatusSuccess, time.Second, 1))
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{limit: 0, want: []string{}},
		{limit: 1, want: []string{"t5"}},
		{limit: 2, want: []string{"t5", "t4"}},
		{limit: 10, want: []string{"t5", "t4", "t3"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("limit %d", tt.limit), func(t *testing.T) {
			got := store.GetRecentTasks(tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tasks, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("task %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}

	// The aggregates outlive the ring buffer.
	if m := store.GetTaskMetrics(); m.TotalProcessed != 5 {
		t.Errorf("TotalProcessed = %d, want 5", m.TotalProcessed)
	}
}

func TestMetricsStore_GetSystemStatus(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMetricsStore(StoreConfig{Version: "1.2.3", Device: "cuda"}, start)
	store.now = func() time.Time { return start.Add(time.Hour) }

	status := store.GetSystemStatus()
	if status.Health != SystemHealthRunning {
		t.Errorf("Health = %s, want running", status.Health)
	}
	if status.Version != "1.2.3" || status.Device != "cuda" {
		t.Errorf("status = %+v", status)
	}
	if status.Uptime != time.Hour {
		t.Errorf("Uptime = %v, want 1h", status.Uptime)
	}

	for i := 0; i < UnhealthyStreak; i++ {
		store.RecordTask(generateTask("fail", TaskStatusError, 0, 0))
	}
	if got := store.GetSystemStatus().Health; got != SystemHealthError {
		t.Errorf("Health after %d failures = %s, want error", UnhealthyStreak, got)
	}

	// Deletes do not reset the streak; a successful generation does.
	store.RecordTask(TaskRecord{Type: TaskTypeDelete, Status: TaskStatusSuccess})
	if got := store.GetSystemStatus().Health; got != SystemHealthError {
		t.Errorf("Health after delete = %s, want error", got)
	}
	store.RecordTask(generateTask("ok", TaskStatusSuccess, time.Second, 1))
	if got := store.GetSystemStatus().Health; got != SystemHealthRunning {
		t.Errorf("Health after success = %s, want running", got)
	}
}

func TestMetricsStore_GPUMetrics(t *testing.T) {
	store := NewMetricsStore(DefaultStoreConfig(), time.Now())
	if got := store.GetGPUMetrics(); got != (GPUMetrics{}) {
		t.Errorf("initial GPU metrics = %+v, want zero", got)
	}

	sample := GPUMetrics{Utilization: 90, Temperature: 70, MemoryTotal: 8 << 30, MemoryUsed: 6 << 30, MemoryFree: 2 << 30}
	store.UpdateGPUMetrics(sample)
	if got := store.GetGPUMetrics(); got != sample {
		t.Errorf("GetGPUMetrics() = %+v, want %+v", got, sample)
	}
}

func TestMetricsStore_ConcurrentAccess(t *testing.T) {
	store := NewMetricsStore(StoreConfig{TaskHistoryCapacity: 10}, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.RecordTask(generateTask(fmt.Sprintf("%d-%d", n, j), TaskStatusSuccess, time.Millisecond, 1))
				store.GetRecentTasks(5)
				store.GetTaskMetrics()
				store.UpdateGPUMetrics(GPUMetrics{Utilization: float64(j)})
				store.GetSystemStatus()
			}
		}(i)
	}
	wg.Wait()

	if m := store.GetTaskMetrics(); m.TotalProcessed != 400 || m.TotalImages != 400 {
		t.Errorf("totals = %+v, want 400 tasks and images", m)
	}
}
