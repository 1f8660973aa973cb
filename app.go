package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sd_backend/catalog"
	"sd_backend/core"
	"sd_backend/core/validation"
	"sd_backend/db"
	"sd_backend/imagegen"
	"sd_backend/logging"
	"sd_backend/metrics"
	"sd_backend/sdruntime"
	"sd_backend/shutdown"
	"sd_backend/webui"
)

// generationStack is the part of the service that turns parameters into
// images on disk. The serve and generate commands both build one.
type generationStack struct {
	catalog   *catalog.Catalog
	cache     *sdruntime.PipelineCache
	store     *imagegen.Store
	processor *imagegen.Processor
}

func newGenerationStack(cfg *core.Config, device sdruntime.Device, logger *zap.Logger) (*generationStack, error) {
	models := catalog.New(cfg.ModelsDir, logger.Named("catalog"))

	store, err := imagegen.NewStore(cfg.OutputDir, cfg.ThumbSize, logger.Named("store"))
	if err != nil {
		return nil, err
	}

	cache := sdruntime.NewPipelineCache(sdruntime.NativeBackend{}, device, logger.Named("pipelines"))
	processor, err := imagegen.NewProcessor(models, cache, store, logger.Named("generate"), imagegen.ProcessorConfig{
		MaxConcurrent: int64(cfg.MaxConcurrent),
	})
	if err != nil {
		cache.Close()
		return nil, err
	}

	return &generationStack{
		catalog:   models,
		cache:     cache,
		store:     store,
		processor: processor,
	}, nil
}

// resolveDevice adapts sdruntime.ResolveDevice for the validation suite.
func resolveDevice(requested string) (string, error) {
	d, err := sdruntime.ResolveDevice(requested)
	return string(d), err
}

// runStartupValidation prints the startup checks and reports whether the
// service may start.
func runStartupValidation(cfg *core.Config, logger *logging.Logger, showProgress bool) bool {
	result := validation.NewValidationSuite(cfg).
		WithDeviceResolver(resolveDevice).
		WithShowProgress(showProgress).
		Validate()

	if !result.Success {
		logger.Error("Startup validation failed",
			zap.String("summary", result.Summary()),
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)
		for _, step := range result.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("Validation step failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}
		return false
	}

	logger.Info("Startup validation passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Int("warnings", result.Warnings),
		zap.Duration("duration", result.Duration),
	)
	return true
}

// application is the running HTTP service with everything it owns.
type application struct {
	cfg    *core.Config
	logger *logging.Logger
	device sdruntime.Device

	gen       *generationStack
	database  *db.Database
	history   *db.Repository
	writer    *db.AsyncWriter
	retention *db.RetentionScheduler
	metrics   *metrics.MetricsStore
	gpu       *metrics.GPUCollector
	hub       *webui.EventHub
	server    *webui.Server
	manager   *shutdown.Manager
}

// newApplication wires every component and registers its shutdown step.
// Nothing is started yet.
func newApplication(ctx context.Context, cfg *core.Config, logger *logging.Logger) (_ *application, err error) {
	log := logger.Zap()

	device, err := sdruntime.ResolveDevice(cfg.Device)
	if err != nil {
		return nil, err
	}

	app := &application{
		cfg:     cfg,
		logger:  logger,
		device:  device,
		manager: shutdown.NewManager(log.Named("shutdown"), shutdown.WithTimeout(cfg.ShutdownTimeout)),
	}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	if app.gen, err = newGenerationStack(cfg, device, log); err != nil {
		return nil, err
	}
	removeTemp := shutdown.CleanupTempFiles(log.Named("cleanup"), imagegen.TempFilePattern, app.gen.store.Dirs()...)
	_ = removeTemp(ctx)

	if app.database, err = db.Open(ctx, cfg.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	app.history = db.NewRepository(app.database)
	app.writer = db.NewAsyncWriter(app.history.AsyncWriteHandler(), log.Named("history"))
	app.history.AttachWriter(app.writer)

	if app.retention, err = db.NewRetentionScheduler(app.database, cfg.HistoryCleanupSpec, cfg.HistoryRetentionDays, log.Named("retention")); err != nil {
		return nil, err
	}

	storeConfig := metrics.DefaultStoreConfig()
	storeConfig.Version = core.Version
	storeConfig.Device = string(device)
	app.metrics = metrics.NewMetricsStore(storeConfig, time.Now())

	if device.Accelerated() {
		app.gpu = metrics.NewGPUCollector(metrics.DefaultGPUCollectorConfig(), log.Named("gpu"), app.metrics.UpdateGPUMetrics)
	}

	app.hub = webui.NewEventHub(webui.DefaultHubConfig(), log.Named("events"))

	app.gen.processor.OnComplete(historyObserver(app.history, log.Named("history")))
	app.gen.processor.OnComplete(metricsObserver(app.metrics))
	app.gen.processor.OnComplete(app.hub.GenerationObserver())

	serverConfig := webui.DefaultServerConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port
	serverConfig.CORSOrigins = cfg.CORSOrigins
	serverConfig.Device = string(device)

	services := webui.Services{
		Models:     app.gen.catalog,
		Generator:  app.gen.processor,
		Images:     app.gen.store,
		History:    app.history,
		Cache:      app.gen.cache,
		Operations: app.manager,
		Metrics:    app.metrics,
		GPU:        app.gpu,
		Events:     app.hub,
		OutputDir:  cfg.OutputDir,
	}
	if app.server, err = webui.NewServer(serverConfig, services, log.Named("http")); err != nil {
		return nil, err
	}

	app.registerShutdown()
	return app, nil
}

// registerShutdown orders teardown: stop taking requests, stop pushing
// events, stop background jobs, flush history, then release files.
func (a *application) registerShutdown() {
	log := a.logger.Zap()
	m := a.manager

	m.Register("http-server", shutdown.PriorityHTTPServer, a.server.Shutdown)
	m.Register("event-hub", shutdown.PriorityEventHub, a.hub.Close)
	m.Register("history-retention", shutdown.PriorityScheduler, a.retention.Stop)
	if a.gpu != nil {
		m.Register("gpu-collector", shutdown.PriorityScheduler, func(ctx context.Context) error {
			a.gpu.Stop()
			return nil
		})
	}
	m.Register("history-writer", shutdown.PriorityWriter, a.writer.Stop)
	m.Register("database", shutdown.PriorityDatabase, func(ctx context.Context) error {
		return a.database.Close()
	})
	m.Register("pipeline-cache", shutdown.PriorityDatabase, func(ctx context.Context) error {
		return a.gen.cache.Close()
	})
	m.Register("temp-files", shutdown.PriorityTempFiles,
		shutdown.CleanupTempFiles(log.Named("cleanup"), imagegen.TempFilePattern, a.gen.store.Dirs()...))
	m.Register("logger", shutdown.PriorityLogger, func(ctx context.Context) error {
		return a.logger.Sync()
	})
}

// start launches the background components.
func (a *application) start() error {
	a.hub.Start()
	a.writer.Start()
	if err := a.retention.Start(); err != nil {
		return err
	}
	if a.gpu != nil {
		a.gpu.Start()
	}
	return nil
}

// run serves until a signal, a Trigger or a server failure, then shuts
// down and returns the process exit code. Under a service manager the host
// delivers stop requests, so handleSignals is false there.
func (a *application) run(handleSignals bool) int {
	if handleSignals {
		a.manager.Start()
	}
	if err := a.start(); err != nil {
		a.logger.Error("Failed to start background services", zap.Error(err))
		a.manager.Trigger("startup failure")
		_ = a.manager.Shutdown()
		return core.ExitCodeError
	}

	a.logger.Info("Image service ready",
		zap.String("addr", a.server.Addr()),
		zap.String("device", string(a.device)),
		zap.String("backend", sdruntime.BackendInfo()),
		zap.String("version", core.GetVersionInfo()),
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.server.ListenAndServe() }()

	exitCode := core.ExitCodeSuccess
	select {
	case <-a.manager.Context().Done():
	case err := <-serveErr:
		if err != nil {
			a.logger.Error("HTTP server failed", zap.Error(err))
			exitCode = core.ExitCodeError
		}
		a.manager.Trigger("http server stopped")
	}

	if err := a.manager.Shutdown(); err != nil && exitCode == core.ExitCodeSuccess {
		exitCode = core.ExitCodeError
	}
	if exitCode == core.ExitCodeSuccess {
		exitCode = a.manager.ExitCode()
	}
	return exitCode
}

// close releases whatever newApplication managed to open. It is only used
// when wiring fails; a running application shuts down through the manager.
func (a *application) close() {
	var errs []error
	if a.gen != nil {
		errs = append(errs, a.gen.cache.Close())
	}
	if a.database != nil {
		errs = append(errs, a.database.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Cleanup after failed startup", zap.Error(err))
	}
}
