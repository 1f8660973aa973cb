package sdruntime

import "errors"

// Sentinel errors for SD runtime operations.
var (
	// Model-related errors
	ErrModelNotFound   = errors.New("sdruntime: model file not found")
	ErrModelLoadFailed = errors.New("sdruntime: failed to load model")

	// Generation errors
	ErrGenerationFailed = errors.New("sdruntime: image generation failed")
	ErrInvalidParams    = errors.New("sdruntime: invalid generation parameters")

	// Hardware/resource errors
	ErrCUDANotAvailable = errors.New("sdruntime: CUDA not available")
	ErrUnknownDevice    = errors.New("sdruntime: unknown device")

	// Cache errors
	ErrCacheClosed = errors.New("sdruntime: pipeline cache is closed")
)
