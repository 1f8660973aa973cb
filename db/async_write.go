package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// DefaultChannelCapacity is the default buffer size for async write channels.
const DefaultChannelCapacity = 100

// DefaultDrainTimeout is the maximum time to wait for pending writes during shutdown.
const DefaultDrainTimeout = 30 * time.Second

// WriteOperation is one queued write.
type WriteOperation struct {
	Data      interface{}
	Timestamp time.Time
}

// WriteHandler processes a write operation on the writer goroutine.
type WriteHandler func(ctx context.Context, op WriteOperation) error

// AsyncWriter runs database writes on a single background goroutine fed
// by a buffered channel. Write never blocks; when the buffer is full it
// reports false and the caller decides whether to write synchronously.
type AsyncWriter struct {
	writeChan chan WriteOperation
	handler   WriteHandler
	logger    *zap.Logger
	config    AsyncWriterConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	processed atomic.Int64
	failed    atomic.Int64
}

// AsyncWriterConfig holds configuration for the async writer.
type AsyncWriterConfig struct {
	ChannelCapacity int
	DrainTimeout    time.Duration
}

// DefaultAsyncWriterConfig returns the default configuration.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		ChannelCapacity: DefaultChannelCapacity,
		DrainTimeout:    DefaultDrainTimeout,
	}
}

// AsyncWriterStats counts handled operations.
type AsyncWriterStats struct {
	Pending   int   `json:"pending"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// NewAsyncWriter creates a writer with the default configuration.
func NewAsyncWriter(handler WriteHandler, logger *zap.Logger) *AsyncWriter {
	return NewAsyncWriterWithConfig(handler, logger, DefaultAsyncWriterConfig())
}

// NewAsyncWriterWithConfig creates a writer with a custom configuration.
func NewAsyncWriterWithConfig(handler WriteHandler, logger *zap.Logger, config AsyncWriterConfig) *AsyncWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = DefaultChannelCapacity
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultDrainTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &AsyncWriter{
		writeChan: make(chan WriteOperation, config.ChannelCapacity),
		handler:   handler,
		logger:    logger,
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the background goroutine. Calling it twice is a no-op.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.stopped {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.processWrites()
}

func (w *AsyncWriter) processWrites() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.drainChannel()
			return
		case op := <-w.writeChan:
			w.handle(op)
		}
	}
}

// drainChannel handles whatever is still buffered after Stop.
func (w *AsyncWriter) drainChannel() {
	for {
		select {
		case op := <-w.writeChan:
			w.handle(op)
		default:
			return
		}
	}
}

func (w *AsyncWriter) handle(op WriteOperation) {
	// Drained writes must still reach the database after Stop cancels w.ctx.
	if err := w.handler(context.WithoutCancel(w.ctx), op); err != nil {
		w.failed.Inc()
		w.logger.Error("async write failed",
			zap.Duration("queued_for", time.Since(op.Timestamp)),
			zap.Error(err))
		return
	}
	w.processed.Inc()
}

// Write queues data. It returns false when the writer is not running or
// the buffer is full.
func (w *AsyncWriter) Write(data interface{}) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started || w.stopped {
		return false
	}

	select {
	case w.writeChan <- WriteOperation{Data: data, Timestamp: time.Now()}:
		return true
	default:
		return false
	}
}

// IsRunning reports whether Write currently accepts operations.
func (w *AsyncWriter) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started && !w.stopped
}

// Stats returns a snapshot of writer counters.
func (w *AsyncWriter) Stats() AsyncWriterStats {
	return AsyncWriterStats{
		Pending:   len(w.writeChan),
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
	}
}

// Stop rejects new writes, drains the buffer and waits for the goroutine,
// up to the configured DrainTimeout or ctx, whichever ends first.
func (w *AsyncWriter) Stop(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(w.config.DrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("async writer: drain timed out with %d pending", len(w.writeChan))
	case <-ctx.Done():
		return ctx.Err()
	}
}
