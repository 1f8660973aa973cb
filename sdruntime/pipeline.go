package sdruntime

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Pipeline is a loaded model bound to one model path. The cache owns it and
// concurrent requests share it. Its scheduler is mutable shared state, so
// every change to it happens inside Generate under mu.
type Pipeline struct {
	path     string
	opts     LoadOptions
	loadedAt time.Time

	mu        sync.Mutex
	model     Model
	scheduler SchedulerConfig

	runs atomic.Int64
}

// NewPipeline wraps a loaded model with the default scheduler.
func NewPipeline(path string, opts LoadOptions, model Model) *Pipeline {
	return &Pipeline{
		path:      path,
		opts:      opts,
		loadedAt:  time.Now(),
		model:     model,
		scheduler: DefaultSchedulerConfig(),
	}
}

// Generate applies the scheduler for sampler and runs one inference call
// for the whole batch. Both steps run under the pipeline mutex.
//
// The returned images map 1:1, in order, to req.Seeds. Errors wrap
// ErrGenerationFailed or ErrInvalidParams.
func (p *Pipeline) Generate(ctx context.Context, sampler Sampler, req BatchRequest) ([]image.Image, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model == nil {
		return nil, fmt.Errorf("%w: pipeline for %s is closed", ErrGenerationFailed, p.path)
	}

	p.scheduler = SelectScheduler(sampler, p.scheduler)
	req.Scheduler = p.scheduler
	p.runs.Inc()

	images, err := p.model.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, ErrGenerationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if len(images) != len(req.Seeds) {
		return nil, fmt.Errorf("%w: backend returned %d images for %d seeds",
			ErrGenerationFailed, len(images), len(req.Seeds))
	}
	return images, nil
}

// Scheduler returns the scheduler the pipeline will start its next run with.
func (p *Pipeline) Scheduler() SchedulerConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduler
}

// Path returns the model path this pipeline was built from.
func (p *Pipeline) Path() string { return p.path }

// Options returns the options the model was loaded with.
func (p *Pipeline) Options() LoadOptions { return p.opts }

// LoadedAt returns when the model finished loading.
func (p *Pipeline) LoadedAt() time.Time { return p.loadedAt }

// Runs returns how many inference calls have been started. It does not
// wait for a running Generate.
func (p *Pipeline) Runs() int64 {
	return p.runs.Load()
}

// Close releases the model. It waits for a running Generate to finish and
// is safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}
