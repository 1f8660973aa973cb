package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sd_backend/core"
)

// Manager ties together the operation tracker, the cleanup registry and
// signal handling.
//
// Usage:
//
//	manager := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
//	manager.Register("database", shutdown.PriorityDatabase, func(ctx context.Context) error {
//	    return database.Close()
//	})
//	manager.Start()
//
//	// In the generate handler:
//	err := manager.WrapOperation(r.Context(), "generate", func(ctx context.Context) error {
//	    images, err = processor.Generate(ctx, params)
//	    return err
//	})
//
//	<-manager.Context().Done()
//	err := manager.Shutdown()
//	os.Exit(manager.ExitCode())
type Manager struct {
	logger   *zap.Logger
	timeout  time.Duration
	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *ShutdownRegistry
	signals  *SignalCounter

	sigChan   chan os.Signal
	forceExit func(code int)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout bounds the whole shutdown: waiting for operations plus all
// cleanup steps. Default is 60 seconds.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// NewManager creates a Manager. A second signal exits the process
// immediately with ExitCodeError.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:    logger,
		timeout:   60 * time.Second,
		ctx:       ctx,
		cancel:    cancel,
		tracker:   NewOperationTracker(),
		registry:  NewShutdownRegistry(),
		sigChan:   make(chan os.Signal, 1),
		forceExit: os.Exit,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("Received second signal, forcing immediate shutdown")
		m.forceExit(core.ExitCodeError)
	})
	return m
}

// Context is cancelled when shutdown is triggered.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup step; see the Priority constants.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// Start listens for SIGINT and SIGTERM. Calling it twice is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.handleSignal(sig)
		}
	}()
}

func (m *Manager) handleSignal(sig os.Signal) {
	if m.signals.Increment(sig) == 1 {
		m.logger.Info("Received shutdown signal, initiating graceful shutdown",
			zap.String("signal", sig.String()),
		)
		m.cancel()
	}
}

// Trigger starts shutdown without a signal, e.g. when the HTTP server
// fails or the service host asks the program to stop.
func (m *Manager) Trigger(reason string) {
	if m.ctx.Err() == nil {
		m.logger.Info("Shutdown requested", zap.String("reason", reason))
	}
	m.cancel()
}

// Shutdown rejects new operations, waits for in-flight ones and runs the
// cleanup steps, all within the configured timeout. It is idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	m.cancel()
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.logger.Info("Initiating graceful shutdown",
		zap.Duration("timeout", m.timeout),
		zap.Strings("handlers", m.registry.Names()),
	)

	m.tracker.Close()
	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("Waiting for in-flight operations", zap.Int64("active_count", active))
	}
	if err := m.tracker.Wait(ctx); err != nil {
		m.logger.Warn("Timeout waiting for in-flight operations",
			zap.Int64("remaining_ops", m.tracker.ActiveCount()),
		)
	}

	// Cleanup always gets at least a second, even after a slow drain.
	cleanupCtx := ctx
	if deadline, _ := ctx.Deadline(); time.Until(deadline) < time.Second {
		var cancelCleanup context.CancelFunc
		cleanupCtx, cancelCleanup = context.WithTimeout(context.Background(), time.Second)
		defer cancelCleanup()
	}

	var errs []error
	for _, step := range m.registry.Shutdown(cleanupCtx) {
		if step.Err != nil {
			errs = append(errs, step.Err)
			m.logger.Error("Cleanup step failed",
				zap.String("step", step.Name),
				zap.Duration("duration", step.Duration),
				zap.Error(step.Err),
			)
			continue
		}
		m.logger.Debug("Cleanup step completed",
			zap.String("step", step.Name),
			zap.Duration("duration", step.Duration),
		)
	}

	if started {
		signal.Stop(m.sigChan)
	}

	if err := errors.Join(errs...); err != nil {
		m.logger.Error("Shutdown completed with errors",
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("error_count", len(errs)),
		)
		return err
	}
	m.logger.Info("Graceful shutdown completed", zap.Duration("duration", time.Since(startTime)))
	return nil
}

// WrapOperation runs fn as a tracked operation. After shutdown began it
// returns ErrTrackerClosed without calling fn.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("Operation rejected, system shutting down", zap.String("operation", name))
		return ErrTrackerClosed
	}
	defer m.tracker.Done()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// ActiveOperations returns the number of in-flight operations.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether shutdown was triggered or started.
func (m *Manager) IsShuttingDown() bool {
	return m.ctx.Err() != nil || m.tracker.IsClosed()
}

// RegisteredHandlers returns step names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}

// Signal returns the first signal received, or nil.
func (m *Manager) Signal() os.Signal {
	return m.signals.First()
}

// ExitCode maps the stopping signal to a process exit code.
func (m *Manager) ExitCode() int {
	return core.ExitCodeForSignal(m.Signal())
}
