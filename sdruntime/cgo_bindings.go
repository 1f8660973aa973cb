// This file contains the build-independent half of the stable-diffusion.cpp
// binding. The per-build halves live in cgo_bindings_stub.go (default) and
// cgo_bindings_sd.go (-tags sd).
//
// Build requirements for the native implementation:
//   - stable-diffusion.cpp compiled as a shared library
//   - Header file: stable-diffusion.h
//   - CGO_CFLAGS and CGO_LDFLAGS pointing at both
//
// Example:
//
//	CGO_CFLAGS="-I/path/to/stable-diffusion.cpp" \
//	CGO_LDFLAGS="-L/path/to/stable-diffusion.cpp/build -lstable-diffusion" \
//	go build -tags sd

package sdruntime

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
)

// NativeBackend loads models through stable-diffusion.cpp.
type NativeBackend struct{}

// Load checks the model file and hands it to the linked library.
func (NativeBackend) Load(ctx context.Context, opts LoadOptions) (Model, error) {
	info, err := os.Stat(opts.Path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, opts.Path)
	} else if err != nil {
		return nil, fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, opts.Path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory, expected a single-file checkpoint", ErrModelLoadFailed, opts.Path)
	}

	handle, err := loadModelImpl(opts)
	if err != nil {
		return nil, err
	}
	return &nativeModel{handle: handle, opts: opts}, nil
}

// BackendInfo describes the linked inference library.
func BackendInfo() string {
	return getBackendInfoImpl()
}

// nativeModel guards its handle so Close cannot race a running Generate.
type nativeModel struct {
	mu     sync.Mutex
	handle *modelHandle
	opts   LoadOptions
}

func (m *nativeModel) Generate(ctx context.Context, req BatchRequest) ([]image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return nil, fmt.Errorf("%w: model is closed", ErrGenerationFailed)
	}

	images := make([]image.Image, 0, len(req.Seeds))
	for _, seed := range req.Seeds {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
		img, err := generateImageImpl(m.handle, req, seed)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func (m *nativeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		freeModelImpl(m.handle)
		m.handle = nil
	}
	return nil
}

// stable-diffusion.cpp sample_method_t and schedule_t values.
const (
	sdSampleEulerA       = 0
	sdSampleEuler        = 1
	sdSampleDPMPP2M      = 5
	sdSampleIPNDM        = 7
	sdSampleDDIMTrailing = 10

	sdScheduleDefault = 0
	sdScheduleKarras  = 2
)

// nativeSampler maps a scheduler configuration onto the library's sampler
// and sigma schedule. The library has no PNDM or LMS sampler; PNDM falls
// back to its own default (Euler a) and LMS to iPNDM, its linear multistep
// variant.
func nativeSampler(cfg SchedulerConfig) (method, schedule int) {
	schedule = sdScheduleDefault
	if cfg.KarrasSigmas {
		schedule = sdScheduleKarras
	}

	switch cfg.Kind {
	case SchedulerDPMSolver:
		return sdSampleDPMPP2M, schedule
	case SchedulerEuler:
		return sdSampleEuler, schedule
	case SchedulerLMS:
		return sdSampleIPNDM, schedule
	case SchedulerDDIM:
		return sdSampleDDIMTrailing, schedule
	default:
		return sdSampleEulerA, schedule
	}
}
