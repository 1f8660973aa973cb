package imagegen

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"

	"sd_backend/catalog"
	"sd_backend/core"
	"sd_backend/sdruntime"
)

// fakeModel renders a solid image per seed.
type fakeModel struct {
	mu       sync.Mutex
	requests []sdruntime.BatchRequest
	err      error

	// afterGenerate runs once the images are rendered.
	afterGenerate func()
}

func (m *fakeModel) Generate(ctx context.Context, req sdruntime.BatchRequest) ([]image.Image, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	out := make([]image.Image, len(req.Seeds))
	for i, seed := range req.Seeds {
		img := image.NewNRGBA(image.Rect(0, 0, req.Width, req.Height))
		c := color.NRGBA{R: uint8(seed), G: 0x40, B: 0x80, A: 0xff}
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = c.R, c.G, c.B, c.A
		}
		out[i] = img
	}
	if m.afterGenerate != nil {
		m.afterGenerate()
	}
	return out, nil
}

func (m *fakeModel) Close() error { return nil }

func (m *fakeModel) calls() []sdruntime.BatchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sdruntime.BatchRequest(nil), m.requests...)
}

// harness wires a Processor over temp directories and a fake backend.
type harness struct {
	modelsDir string
	outputDir string
	model     *fakeModel
	loads     *atomic.Int64
	cache     *sdruntime.PipelineCache
	store     *Store
	processor *Processor
}

func newHarness(t *testing.T, models ...string) *harness {
	t.Helper()
	h := &harness{
		modelsDir: t.TempDir(),
		outputDir: t.TempDir(),
		model:     &fakeModel{},
		loads:     atomic.NewInt64(0),
	}
	for _, m := range models {
		writeModel(t, h.modelsDir, m)
	}

	logger := zaptest.NewLogger(t)
	backend := sdruntime.BackendFunc(func(ctx context.Context, opts sdruntime.LoadOptions) (sdruntime.Model, error) {
		h.loads.Inc()
		return h.model, nil
	})
	h.cache = sdruntime.NewPipelineCache(backend, sdruntime.DeviceCPU, logger)
	t.Cleanup(func() { h.cache.Close() })

	store, err := NewStore(h.outputDir, core.Size{Width: 300, Height: 300}, logger)
	if err != nil {
		t.Fatal(err)
	}
	h.store = store

	p, err := NewProcessor(catalog.New(h.modelsDir, logger), h.cache, store, logger, DefaultProcessorConfig())
	if err != nil {
		t.Fatal(err)
	}
	h.processor = p
	return h
}

// writeModel creates a dummy weights file at a slash-separated path under root.
func writeModel(t *testing.T, root, rel string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("weights"), 0644); err != nil {
		t.Fatal(err)
	}
}

func countFiles(t *testing.T, dir, pattern string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		t.Fatal(err)
	}
	return len(matches)
}

func int64Ptr(v int64) *int64 { return &v }

func validParams() GenerationParameters {
	p := DefaultParameters()
	p.Prompt = "a cat"
	p.Model = "sd15"
	return p
}
