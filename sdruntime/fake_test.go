package sdruntime

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// fakeModel returns solid images and records every request it receives.
type fakeModel struct {
	mu       sync.Mutex
	requests []BatchRequest
	err      error
	short    bool // return one image fewer than requested
	closed   bool
}

func (m *fakeModel) Generate(ctx context.Context, req BatchRequest) ([]image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}

	n := len(req.Seeds)
	if m.short {
		n--
	}
	images := make([]image.Image, n)
	for i := range images {
		img := image.NewNRGBA(image.Rect(0, 0, req.Width, req.Height))
		img.Set(0, 0, color.NRGBA{R: uint8(req.Seeds[i]), A: 255})
		images[i] = img
	}
	return images, nil
}

func (m *fakeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeModel) lastRequest() BatchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

func validBatch(seeds ...int64) BatchRequest {
	return BatchRequest{
		Prompt:   "a cat",
		Width:    512,
		Height:   512,
		Steps:    25,
		CFGScale: 7,
		Seeds:    seeds,
	}
}
