//go:build !sd || stub

// Stub implementation used when stable-diffusion.cpp is not linked.
// Build with: go build (or go build -tags stub)

package sdruntime

import (
	"fmt"
	"image"
	"sync/atomic"
)

var stubModelCounter uint64

// modelHandle tracks a stub "loaded" model.
type modelHandle struct {
	id   uint64
	opts LoadOptions
}

func loadModelImpl(opts LoadOptions) (*modelHandle, error) {
	return &modelHandle{
		id:   atomic.AddUint64(&stubModelCounter, 1),
		opts: opts,
	}, nil
}

func generateImageImpl(h *modelHandle, req BatchRequest, seed int64) (image.Image, error) {
	return nil, fmt.Errorf("%w: stable-diffusion.cpp library not available (stub mode). "+
		"Build with CGO and the 'sd' tag to enable image generation", ErrGenerationFailed)
}

func freeModelImpl(h *modelHandle) {}

func getBackendInfoImpl() string {
	return "stub (no stable-diffusion.cpp library linked)"
}
