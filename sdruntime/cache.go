package sdruntime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LoaderFunc constructs the pipeline for a model path.
type LoaderFunc func(ctx context.Context, path string) (*Pipeline, error)

// PipelineCache maps resolved model paths to loaded pipelines.
//
// At most one load per path is in flight; concurrent callers for the same
// path wait for it and receive the same *Pipeline. Loads of different
// paths proceed in parallel. A failed load is not cached, so the next
// Resolve retries. Entries are never evicted.
type PipelineCache struct {
	loader LoaderFunc
	logger *zap.Logger

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	closed    bool

	group singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	loads    atomic.Int64
	failures atomic.Int64
}

// CacheStats is a snapshot of cache activity.
type CacheStats struct {
	Loaded   int      `json:"loaded"`
	Paths    []string `json:"paths"`
	Hits     int64    `json:"hits"`
	Misses   int64    `json:"misses"`
	Loads    int64    `json:"loads"`
	Failures int64    `json:"failures"`
	Runs     int64    `json:"runs"`
}

// NewPipelineCache creates a cache that loads models through backend on device.
func NewPipelineCache(backend Backend, device Device, logger *zap.Logger) *PipelineCache {
	loader := func(ctx context.Context, path string) (*Pipeline, error) {
		opts := LoadOptionsFor(path, device)
		model, err := backend.Load(ctx, opts)
		if err != nil {
			return nil, err
		}
		return NewPipeline(path, opts, model), nil
	}
	return NewPipelineCacheWithLoader(loader, logger)
}

// NewPipelineCacheWithLoader creates a cache around a custom loader.
func NewPipelineCacheWithLoader(loader LoaderFunc, logger *zap.Logger) *PipelineCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelineCache{
		loader:    loader,
		logger:    logger,
		pipelines: make(map[string]*Pipeline),
	}
}

// Resolve returns the pipeline for path, loading it on first use.
//
// Errors:
//   - ErrModelNotFound: path does not exist
//   - ErrModelLoadFailed: the loader failed (wraps the cause)
//   - ErrCacheClosed: Close was called
//
// Cancelling ctx abandons the wait but not the load itself, which completes
// and is cached for the next caller.
func (c *PipelineCache) Resolve(ctx context.Context, path string) (*Pipeline, error) {
	if p, err := c.lookup(path); p != nil || err != nil {
		if p != nil {
			c.hits.Inc()
		}
		return p, err
	}
	c.misses.Inc()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("%w: unable to access %s: %w", ErrModelLoadFailed, path, err)
	}

	ch := c.group.DoChan(path, func() (interface{}, error) {
		return c.load(context.WithoutCancel(ctx), path)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Pipeline), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *PipelineCache) lookup(path string) (*Pipeline, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrCacheClosed
	}
	return c.pipelines[path], nil
}

// load runs inside the singleflight group for path.
func (c *PipelineCache) load(ctx context.Context, path string) (*Pipeline, error) {
	// A caller that missed the map may join after the previous flight stored
	// its result.
	if p, err := c.lookup(path); p != nil || err != nil {
		return p, err
	}

	start := time.Now()
	c.loads.Inc()
	c.logger.Info("loading model pipeline", zap.String("path", path))

	p, err := c.loader(ctx, path)
	if err != nil {
		c.failures.Inc()
		c.logger.Error("model pipeline load failed",
			zap.String("path", path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		if errors.Is(err, ErrModelLoadFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoadFailed, path, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		p.Close()
		return nil, ErrCacheClosed
	}
	c.pipelines[path] = p
	c.mu.Unlock()

	c.logger.Info("model pipeline loaded",
		zap.String("path", path),
		zap.String("device", string(p.Options().Device)),
		zap.String("precision", string(p.Options().Precision)),
		zap.Duration("duration", time.Since(start)))
	return p, nil
}

// Stats returns a snapshot of cache counters and loaded paths.
func (c *PipelineCache) Stats() CacheStats {
	c.mu.RLock()
	paths := make([]string, 0, len(c.pipelines))
	var runs int64
	for path, p := range c.pipelines {
		paths = append(paths, path)
		runs += p.Runs()
	}
	c.mu.RUnlock()
	sort.Strings(paths)

	return CacheStats{
		Loaded:   len(paths),
		Paths:    paths,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Loads:    c.loads.Load(),
		Failures: c.failures.Load(),
		Runs:     runs,
	}
}

// Close releases every cached pipeline. Resolve fails with ErrCacheClosed
// afterwards. Close is safe to call more than once.
func (c *PipelineCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pipelines := c.pipelines
	c.pipelines = make(map[string]*Pipeline)
	c.mu.Unlock()

	var errs []error
	for path, p := range pipelines {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
