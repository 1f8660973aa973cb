// Package webui serves the HTTP API of the image-generation backend: model
// listing, generation, the image gallery, status and history endpoints, and
// a websocket stream of gallery events.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"sd_backend/catalog"
	"sd_backend/db"
	"sd_backend/imagegen"
	"sd_backend/metrics"
	"sd_backend/sdruntime"
)

// ModelCatalog lists and inspects the models on disk.
type ModelCatalog interface {
	Scan() ([]catalog.ModelFolder, error)
	Verify(rel string) bool
	Metadata(id string) (catalog.ModelMetadata, error)
}

// Generator runs one generation request.
type Generator interface {
	Generate(ctx context.Context, params imagegen.GenerationParameters) ([]imagegen.GeneratedImage, error)
}

// ImageStore reads and removes persisted images.
type ImageStore interface {
	Get(id string) (imagegen.GeneratedImage, error)
	Delete(id string) error
}

// HistoryReader reads the generation history.
type HistoryReader interface {
	QueryRecentGenerations(ctx context.Context, limit int) ([]db.GenerationRecord, error)
}

// CacheStatser reports pipeline cache statistics.
type CacheStatser interface {
	Stats() sdruntime.CacheStats
}

// OperationWrapper tracks in-flight work so shutdown can wait for it.
type OperationWrapper interface {
	WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error
	ActiveOperations() int64
}

// Services are the collaborators the handlers call into. GPU and History
// are optional.
type Services struct {
	Models     ModelCatalog
	Generator  Generator
	Images     ImageStore
	History    HistoryReader
	Cache      CacheStatser
	Operations OperationWrapper
	Metrics    metrics.MetricsCollector
	GPU        *metrics.GPUCollector
	Events     *EventHub

	// OutputDir is served under /outputs/.
	OutputDir string
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string
	Port int

	// ReadHeaderTimeout bounds header reads. There is no write timeout since
	// a generate call can run for minutes.
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	CORSOrigins  []string
	LogSkipPaths []string

	// Device is reported by GET /.
	Device string

	// HistoryDefaultLimit and HistoryMaxLimit bound GET /history.
	HistoryDefaultLimit int
	HistoryMaxLimit     int

	// MaxRequestBytes caps JSON request bodies.
	MaxRequestBytes int64
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:                "0.0.0.0",
		Port:                8000,
		ReadHeaderTimeout:   10 * time.Second,
		IdleTimeout:         120 * time.Second,
		CORSOrigins:         []string{"*"},
		LogSkipPaths:        []string{"/status"},
		Device:              "cpu",
		HistoryDefaultLimit: 20,
		HistoryMaxLimit:     200,
		MaxRequestBytes:     1 << 20,
	}
}

// Server is the API server.
//
// Routes:
//   - GET /, GET /status, GET /history, GET /ws
//   - GET /models, POST /models/verify, GET /models/{id}/metadata
//   - POST /generate, POST /gallery
//   - GET and DELETE /images/{id}
//   - GET /outputs/* for image and thumbnail files
type Server struct {
	httpServer *http.Server
	router     chi.Router
	config     ServerConfig
	services   Services
	logger     *zap.Logger
}

// NewServer validates services and builds the router.
func NewServer(config ServerConfig, services Services, logger *zap.Logger) (*Server, error) {
	switch {
	case services.Models == nil:
		return nil, errors.New("webui: model catalog cannot be nil")
	case services.Generator == nil:
		return nil, errors.New("webui: generator cannot be nil")
	case services.Images == nil:
		return nil, errors.New("webui: image store cannot be nil")
	case services.Cache == nil:
		return nil, errors.New("webui: cache cannot be nil")
	case services.Operations == nil:
		return nil, errors.New("webui: operation wrapper cannot be nil")
	case services.Metrics == nil:
		return nil, errors.New("webui: metrics collector cannot be nil")
	case services.Events == nil:
		return nil, errors.New("webui: event hub cannot be nil")
	case services.OutputDir == "":
		return nil, errors.New("webui: output directory cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultServerConfig()
	if config.HistoryDefaultLimit <= 0 {
		config.HistoryDefaultLimit = defaults.HistoryDefaultLimit
	}
	if config.HistoryMaxLimit < config.HistoryDefaultLimit {
		config.HistoryMaxLimit = config.HistoryDefaultLimit
	}
	if config.MaxRequestBytes <= 0 {
		config.MaxRequestBytes = defaults.MaxRequestBytes
	}

	s := &Server{
		config:   config,
		services: services,
		logger:   logger,
	}
	s.router = s.routes()

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	logger.Info("api server created",
		zap.String("addr", addr),
		zap.Strings("cors_origins", config.CORSOrigins))
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(newLoggingMiddleware(s.logger, s.config.LogSkipPaths).Handler)
	r.Use(recoveryMiddleware(s.logger))
	r.Use(corsMiddleware(s.config.CORSOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/status", s.handleStatus)
	r.Get("/history", s.handleHistory)
	r.Get("/ws", s.services.Events.HandleConnection)

	r.Route("/models", func(r chi.Router) {
		r.Get("/", s.handleListModels)
		r.Post("/verify", s.handleVerifyModel)
		r.Get("/{id}/metadata", s.handleModelMetadata)
	})

	r.Post("/generate", s.handleGenerate)
	r.Post("/gallery", s.handleSaveToGallery)

	r.Route("/images/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetImage)
		r.Delete("/", s.handleDeleteImage)
	})

	r.Handle("/outputs/*", http.StripPrefix("/outputs/", noDirListing(http.FileServer(http.Dir(s.services.OutputDir)))))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe blocks until the server stops. A graceful Shutdown
// returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("api server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webui: http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down api server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("webui: http shutdown: %w", err)
	}
	return nil
}
