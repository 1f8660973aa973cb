package webui

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"sd_backend/catalog"
	"sd_backend/db"
	"sd_backend/imagegen"
	"sd_backend/metrics"
	"sd_backend/sdruntime"
	"sd_backend/shutdown"
)

const testImageID = "3f0c4f5e-8d4b-4a43-9b8e-2f1f4b6f1a11"

type fakeCatalog struct {
	folders []catalog.ModelFolder
	scanErr error
	files   map[string]bool
	meta    map[string]catalog.ModelMetadata
}

func (f *fakeCatalog) Scan() ([]catalog.ModelFolder, error) {
	return f.folders, f.scanErr
}

func (f *fakeCatalog) Verify(rel string) bool {
	return f.files[rel]
}

func (f *fakeCatalog) Metadata(id string) (catalog.ModelMetadata, error) {
	m, ok := f.meta[id]
	if !ok {
		return catalog.ModelMetadata{}, fmt.Errorf("%w: %s", catalog.ErrModelNotFound, id)
	}
	return m, nil
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  []imagegen.GenerationParameters
	images []imagegen.GeneratedImage
	err    error
	block  chan struct{}
	ctxErr error
}

func (f *fakeGenerator) Generate(ctx context.Context, params imagegen.GenerationParameters) ([]imagegen.GeneratedImage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	f.mu.Lock()
	f.ctxErr = ctx.Err()
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", imagegen.ErrGenerationFailed, err)
	}
	return f.images, nil
}

func (f *fakeGenerator) lastCall() (imagegen.GenerationParameters, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return imagegen.GenerationParameters{}, false
	}
	return f.calls[len(f.calls)-1], true
}

type fakeImageStore struct {
	mu        sync.Mutex
	images    map[string]imagegen.GeneratedImage
	deleteErr error
}

func (f *fakeImageStore) Get(id string) (imagegen.GeneratedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return imagegen.GeneratedImage{}, fmt.Errorf("%w: image %s", imagegen.ErrNotFound, id)
	}
	return img, nil
}

func (f *fakeImageStore) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.images[id]; !ok {
		return fmt.Errorf("%w: image %s", imagegen.ErrNotFound, id)
	}
	delete(f.images, id)
	return nil
}

type fakeHistory struct {
	records []db.GenerationRecord
	err     error
	limits  []int
}

func (f *fakeHistory) QueryRecentGenerations(ctx context.Context, limit int) ([]db.GenerationRecord, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type fakeCache struct {
	stats sdruntime.CacheStats
}

func (f fakeCache) Stats() sdruntime.CacheStats {
	return f.stats
}

type staticGPUReader struct {
	metrics metrics.GPUMetrics
}

func (r *staticGPUReader) ReadGPUMetrics(ctx context.Context) (metrics.GPUMetrics, error) {
	return r.metrics, nil
}

// testEnv bundles a server with its collaborators.
type testEnv struct {
	server    *Server
	catalog   *fakeCatalog
	generator *fakeGenerator
	images    *fakeImageStore
	history   *fakeHistory
	metrics   *metrics.MetricsStore
	manager   *shutdown.Manager
	hub       *EventHub
	outputDir string
}

func sampleImage() imagegen.GeneratedImage {
	params := imagegen.DefaultParameters()
	params.Prompt = "a lighthouse at dusk"
	params.Model = "dreamshaper_8"
	return imagegen.GeneratedImage{
		ID:         testImageID,
		URL:        imagegen.ImageURL(testImageID),
		Prompt:     params.Prompt,
		Parameters: params,
		Seed:       42,
		Timestamp:  1700000000000,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	env := &testEnv{
		catalog: &fakeCatalog{
			folders: []catalog.ModelFolder{{
				ID:   "checkpoints",
				Name: "Checkpoints",
				Models: []catalog.ModelInfo{{
					ID:   "dreamshaper_8",
					Name: "Dreamshaper 8",
					Path: "checkpoints/dreamshaper_8.safetensors",
					Type: catalog.TypeCheckpoint,
				}},
			}},
			files: map[string]bool{"checkpoints/dreamshaper_8.safetensors": true},
			meta: map[string]catalog.ModelMetadata{
				"dreamshaper_8": {Format: "SafeTensors", Size: 2.13, Resolution: "1024x1024"},
			},
		},
		generator: &fakeGenerator{images: []imagegen.GeneratedImage{sampleImage()}},
		images:    &fakeImageStore{images: map[string]imagegen.GeneratedImage{testImageID: sampleImage()}},
		history:   &fakeHistory{},
		metrics:   metrics.NewMetricsStore(metrics.DefaultStoreConfig(), time.Now()),
		manager:   shutdown.NewManager(logger),
		hub:       NewEventHub(DefaultHubConfig(), logger),
		outputDir: t.TempDir(),
	}

	env.hub.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.hub.Close(ctx)
	})

	config := DefaultServerConfig()
	config.Device = "cuda"
	config.LogSkipPaths = nil

	server, err := NewServer(config, env.services(), logger)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	env.server = server
	return env
}

func (e *testEnv) services() Services {
	return Services{
		Models:     e.catalog,
		Generator:  e.generator,
		Images:     e.images,
		History:    e.history,
		Cache:      fakeCache{stats: sdruntime.CacheStats{Loaded: 1, Paths: []string{"checkpoints/dreamshaper_8.safetensors"}, Hits: 3, Misses: 1, Loads: 1}},
		Operations: e.manager,
		Metrics:    e.metrics,
		Events:     e.hub,
		OutputDir:  e.outputDir,
	}
}
