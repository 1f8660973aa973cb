package metrics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GPUReader reads one GPU sample.
type GPUReader interface {
	ReadGPUMetrics(ctx context.Context) (GPUMetrics, error)
}

// GPUCollectorConfig configures the GPUCollector.
type GPUCollectorConfig struct {
	// CollectionInterval is how often to sample. Values below one second
	// fall back to the default.
	CollectionInterval time.Duration

	// HistorySize is the number of samples kept (720 = 1 hour at 5s).
	HistorySize int

	// NvidiaSMIPath is the nvidia-smi executable; empty means PATH lookup.
	NvidiaSMIPath string

	// GPUIndex selects the device nvidia-smi reports on.
	GPUIndex int
}

// DefaultGPUCollectorConfig returns a default configuration.
func DefaultGPUCollectorConfig() GPUCollectorConfig {
	return GPUCollectorConfig{
		CollectionInterval: 5 * time.Second,
		HistorySize:        720,
		NvidiaSMIPath:      "nvidia-smi",
	}
}

// GPUCollector samples the GPU periodically while CUDA inference is active
// and forwards each good sample to onMetrics (normally
// MetricsStore.UpdateGPUMetrics).
//
// Thread-Safety:
//   - all getters are safe for concurrent use
//   - onMetrics is called from the collector goroutine, outside the lock
//   - Stop may be called more than once
type GPUCollector struct {
	mu sync.RWMutex

	config GPUCollectorConfig
	reader GPUReader
	logger *zap.Logger

	// Ring buffer of samples
	history  []GPUMetrics
	histHead int
	histSize int
	histCap  int

	lastMetrics GPUMetrics
	available   bool
	lastError   error
	sampled     bool // at least one read attempted

	onMetrics func(GPUMetrics)

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewGPUCollector creates a collector that reads nvidia-smi.
func NewGPUCollector(config GPUCollectorConfig, logger *zap.Logger, onMetrics func(GPUMetrics)) *GPUCollector {
	if config.NvidiaSMIPath == "" {
		config.NvidiaSMIPath = "nvidia-smi"
	}
	return NewGPUCollectorWithReader(config, nvidiaSMI{path: config.NvidiaSMIPath, index: config.GPUIndex}, logger, onMetrics)
}

// NewGPUCollectorWithReader creates a collector with a custom reader.
func NewGPUCollectorWithReader(config GPUCollectorConfig, reader GPUReader, logger *zap.Logger, onMetrics func(GPUMetrics)) *GPUCollector {
	if config.CollectionInterval < time.Second {
		config.CollectionInterval = 5 * time.Second
	}
	if config.HistorySize < 1 {
		config.HistorySize = 720
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &GPUCollector{
		config:    config,
		reader:    reader,
		logger:    logger,
		history:   make([]GPUMetrics, config.HistorySize),
		histCap:   config.HistorySize,
		onMetrics: onMetrics,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start samples once immediately, then on every interval, in the background.
func (c *GPUCollector) Start() {
	c.wg.Add(1)
	go c.collectLoop()
}

// Stop halts collection and waits for the goroutine.
func (c *GPUCollector) Stop() {
	c.stopOnce.Do(c.cancel)
	c.wg.Wait()
}

// IsAvailable reports whether the last sample succeeded.
func (c *GPUCollector) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// GetLastError returns the error of the last sample, or nil.
func (c *GPUCollector) GetLastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// GetCurrentMetrics returns the last good sample.
func (c *GPUCollector) GetCurrentMetrics() GPUMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

// GetHistory returns the last limit samples, oldest first.
func (c *GPUCollector) GetHistory(limit int) []GPUMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 || c.histSize == 0 {
		return []GPUMetrics{}
	}
	if limit > c.histSize {
		limit = c.histSize
	}

	result := make([]GPUMetrics, limit)
	for i := 0; i < limit; i++ {
		idx := (c.histHead - limit + i + c.histCap) % c.histCap
		result[i] = c.history[idx]
	}
	return result
}

func (c *GPUCollector) collectLoop() {
	defer c.wg.Done()

	c.collectOnce()

	ticker := time.NewTicker(c.config.CollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collectOnce()
		}
	}
}

func (c *GPUCollector) collectOnce() {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	metrics, err := c.reader.ReadGPUMetrics(ctx)
	cancel()

	if c.ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	wasAvailable, firstSample := c.available, !c.sampled
	c.sampled = true
	if err != nil {
		// The last good sample stays readable.
		c.available = false
		c.lastError = err
	} else {
		c.available = true
		c.lastError = nil
		c.lastMetrics = metrics

		c.history[c.histHead] = metrics
		c.histHead = (c.histHead + 1) % c.histCap
		if c.histSize < c.histCap {
			c.histSize++
		}
	}
	c.mu.Unlock()

	// Log transitions only; nvidia-smi failing every 5s would flood the log.
	switch {
	case err != nil && (wasAvailable || firstSample):
		c.logger.Warn("GPU metrics unavailable", zap.Error(err))
	case err == nil && !wasAvailable:
		c.logger.Info("GPU metrics available",
			zap.Int64("memory_total", metrics.MemoryTotal))
	}

	if err == nil && c.onMetrics != nil {
		c.onMetrics(metrics)
	}
}

// nvidiaSMI reads one GPU through the nvidia-smi CLI.
type nvidiaSMI struct {
	path  string
	index int
}

func (n nvidiaSMI) ReadGPUMetrics(ctx context.Context) (GPUMetrics, error) {
	cmd := exec.CommandContext(ctx, n.path,
		"--id="+strconv.Itoa(n.index),
		"--query-gpu=utilization.gpu,temperature.gpu,memory.used,memory.total",
		"--format=csv,noheader,nounits")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return GPUMetrics{}, fmt.Errorf("nvidia-smi failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return parseNvidiaSMIOutput(stdout.String())
}

// parseNvidiaSMIOutput parses the first CSV row of
// "utilization, temperature, memory.used MiB, memory.total MiB".
func parseNvidiaSMIOutput(output string) (GPUMetrics, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return GPUMetrics{}, fmt.Errorf("empty nvidia-smi output")
	}

	reader := csv.NewReader(strings.NewReader(output))
	reader.TrimLeadingSpace = true
	record, err := reader.Read()
	if err != nil {
		return GPUMetrics{}, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(record) < 4 {
		return GPUMetrics{}, fmt.Errorf("unexpected field count: got %d, expected 4", len(record))
	}

	names := [4]string{"utilization", "temperature", "memory used", "memory total"}
	var values [4]float64
	for i := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return GPUMetrics{}, fmt.Errorf("failed to parse %s: %w", names[i], err)
		}
		values[i] = v
	}

	const mib = 1024 * 1024
	memUsed := int64(values[2] * mib)
	memTotal := int64(values[3] * mib)

	return GPUMetrics{
		Utilization: values[0],
		Temperature: values[1],
		MemoryTotal: memTotal,
		MemoryUsed:  memUsed,
		MemoryFree:  memTotal - memUsed,
	}, nil
}
