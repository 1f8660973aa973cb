package imagegen

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"sd_backend/catalog"
	"sd_backend/core"
	"sd_backend/logging"
	"sd_backend/sdruntime"
)

// ModelFinder resolves catalog ids to model files.
type ModelFinder interface {
	Find(id string) (catalog.ModelInfo, error)
	AbsPath(rel string) (string, error)
}

// PipelineSource hands out loaded pipelines by model path.
type PipelineSource interface {
	Resolve(ctx context.Context, path string) (*sdruntime.Pipeline, error)
}

// Persister writes one generated image.
type Persister interface {
	Persist(ctx context.Context, img image.Image, params GenerationParameters, seed int64) (GeneratedImage, error)
}

// Report describes a finished Generate call, successful or not.
type Report struct {
	RequestID string
	Params    GenerationParameters
	Seeds     []int64
	Images    []GeneratedImage
	Err       error
	Metrics   logging.GenerationMetrics
}

// Observer is called after every Generate call. Observers run on the
// request goroutine and must not block.
type Observer func(ctx context.Context, r Report)

// ProcessorConfig holds configuration for the processor.
type ProcessorConfig struct {
	// MaxConcurrent bounds concurrent inference calls across all pipelines.
	MaxConcurrent int64
}

// DefaultProcessorConfig returns a config that runs one inference at a time.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{MaxConcurrent: 1}
}

// Processor runs generation requests.
//
// Thread-Safety:
//   - Processor is safe for concurrent use
//   - inference is bounded by a weighted semaphore
//   - scheduler changes are serialized per pipeline by Pipeline.Generate
//   - persistence runs outside both, so disk I/O stays concurrent
type Processor struct {
	models ModelFinder
	cache  PipelineSource
	store  Persister
	logger *zap.Logger
	sem    *semaphore.Weighted

	mu        sync.RWMutex
	observers []Observer
}

// NewProcessor creates a processor. The processor does not take ownership
// of the cache; the caller closes it.
func NewProcessor(models ModelFinder, cache PipelineSource, store Persister, logger *zap.Logger, config ProcessorConfig) (*Processor, error) {
	if models == nil {
		return nil, fmt.Errorf("imagegen: model catalog cannot be nil")
	}
	if cache == nil {
		return nil, fmt.Errorf("imagegen: pipeline cache cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("imagegen: store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("imagegen: logger cannot be nil")
	}
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}

	return &Processor{
		models: models,
		cache:  cache,
		store:  store,
		logger: logger,
		sem:    semaphore.NewWeighted(config.MaxConcurrent),
	}, nil
}

// OnComplete registers an observer for finished requests.
func (p *Processor) OnComplete(obs Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, obs)
}

// Generate runs one request and returns params.BatchSize images whose
// seeds follow sdruntime.PlanSeeds. It is all-or-nothing: on error no
// images are returned, though images persisted before a mid-batch failure
// stay on disk.
func (p *Processor) Generate(ctx context.Context, params GenerationParameters) ([]GeneratedImage, error) {
	start := time.Now()
	ctx, requestID := core.EnsureRequestID(ctx)
	log := p.logger.With(zap.String("request_id", requestID))

	report := Report{
		RequestID: requestID,
		Params:    params,
		Metrics: logging.GenerationMetrics{
			RequestID: requestID,
			Model:     params.Model,
			Sampler:   params.Sampler,
			Width:     params.Width,
			Height:    params.Height,
			Steps:     params.Steps,
			BatchSize: params.BatchSize,
		},
	}
	defer func() {
		report.Metrics.TotalDuration = time.Since(start)
		p.notify(ctx, report)
	}()

	images, err := p.generate(ctx, log, params, &report)
	if err != nil {
		report.Err = wrapFailure(err)
		log.Error("image generation failed",
			zap.String("model", params.Model),
			zap.String("kind", Kind(report.Err)),
			zap.Error(err))
		return nil, report.Err
	}

	report.Images = images
	report.Metrics.TotalDuration = time.Since(start)
	log.Info("image generation completed", logging.GenerationFields(report.Metrics))
	return images, nil
}

func (p *Processor) generate(ctx context.Context, log *zap.Logger, params GenerationParameters, report *Report) ([]GeneratedImage, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	model, err := p.models.Find(params.Model)
	if err != nil {
		return nil, err
	}
	path, err := p.models.AbsPath(model.Path)
	if err != nil {
		return nil, err
	}

	loadStart := time.Now()
	pipeline, err := p.cache.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if pipeline.LoadedAt().After(loadStart) {
		report.Metrics.LoadDuration = time.Since(loadStart)
	}

	if len(params.EnabledLoras) > 0 {
		log.Debug("LoRAs recorded but not applied", zap.Int("count", len(params.EnabledLoras)))
	}

	seeds := sdruntime.PlanSeeds(params.BatchSize, params.Seed)
	report.Seeds = seeds
	report.Metrics.Seeds = seeds

	req := sdruntime.BatchRequest{
		Prompt:         params.Prompt,
		NegativePrompt: params.NegativePrompt,
		Width:          params.Width,
		Height:         params.Height,
		Steps:          params.Steps,
		CFGScale:       params.CFGScale,
		Seeds:          seeds,
	}

	inferStart := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	raster, err := pipeline.Generate(ctx, sdruntime.ParseSampler(params.Sampler), req)
	p.sem.Release(1)
	report.Metrics.InferenceDuration = time.Since(inferStart)
	if err != nil {
		return nil, err
	}

	persistStart := time.Now()
	results := make([]GeneratedImage, 0, len(raster))
	for i, img := range raster {
		record, err := p.store.Persist(ctx, img, params, seeds[i])
		if err != nil {
			if len(results) > 0 {
				log.Warn("leaving images from failed batch on disk", zap.Int("persisted", len(results)))
			}
			return nil, err
		}
		results = append(results, record)
	}
	report.Metrics.PersistDuration = time.Since(persistStart)
	return results, nil
}

func (p *Processor) notify(ctx context.Context, r Report) {
	p.mu.RLock()
	observers := p.observers
	p.mu.RUnlock()

	for _, obs := range observers {
		obs(ctx, r)
	}
}
