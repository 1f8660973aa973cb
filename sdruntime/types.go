package sdruntime

import (
	"fmt"
	"strings"
)

// Backend limits. The latent space is 1/8 of pixel space, so dimensions
// must divide by 8.
const (
	MinImageSize      = 128
	MaxImageSize      = 2048
	ImageSizeMultiple = 8

	MinSteps = 1
	MaxSteps = 150

	MinCFGScale = 0.0
	MaxCFGScale = 30.0

	MaxPromptLength = 1000
	MaxBatchSize    = 8
)

// Precision is the floating-point width weights are loaded at.
type Precision string

const (
	PrecisionFP16 Precision = "fp16"
	PrecisionFP32 Precision = "fp32"
)

// LoadOptions describes how a backend constructs a model.
type LoadOptions struct {
	Path                     string
	Device                   Device
	Precision                Precision
	MemoryEfficientAttention bool
}

// LoadOptionsFor picks precision and attention settings for device:
// fp16 with memory-efficient attention on CUDA, fp32 otherwise.
func LoadOptionsFor(path string, device Device) LoadOptions {
	opts := LoadOptions{Path: path, Device: device, Precision: PrecisionFP32}
	if device == DeviceCUDA {
		opts.Precision = PrecisionFP16
		opts.MemoryEfficientAttention = true
	}
	return opts
}

// BatchRequest is one inference call. The backend returns exactly one
// image per seed, in seed order.
type BatchRequest struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	CFGScale       float64
	Seeds          []int64
	Scheduler      SchedulerConfig
}

// Validate checks the request against backend limits.
func (r BatchRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt cannot be empty", ErrInvalidParams)
	}
	// C strings end at the first NUL
	if strings.ContainsRune(r.Prompt, '\x00') || strings.ContainsRune(r.NegativePrompt, '\x00') {
		return fmt.Errorf("%w: prompt contains null bytes", ErrInvalidParams)
	}
	if err := validateDimension("width", r.Width); err != nil {
		return err
	}
	if err := validateDimension("height", r.Height); err != nil {
		return err
	}
	if r.Steps < MinSteps || r.Steps > MaxSteps {
		return fmt.Errorf("%w: steps %d must be between %d and %d",
			ErrInvalidParams, r.Steps, MinSteps, MaxSteps)
	}
	if r.CFGScale < MinCFGScale || r.CFGScale > MaxCFGScale {
		return fmt.Errorf("%w: cfg scale %.2f must be between %.1f and %.1f",
			ErrInvalidParams, r.CFGScale, MinCFGScale, MaxCFGScale)
	}
	if len(r.Seeds) == 0 {
		return fmt.Errorf("%w: at least one seed is required", ErrInvalidParams)
	}
	return nil
}

func validateDimension(name string, v int) error {
	if v < MinImageSize || v > MaxImageSize {
		return fmt.Errorf("%w: %s %d must be between %d and %d",
			ErrInvalidParams, name, v, MinImageSize, MaxImageSize)
	}
	if v%ImageSizeMultiple != 0 {
		return fmt.Errorf("%w: %s %d must be divisible by %d",
			ErrInvalidParams, name, v, ImageSizeMultiple)
	}
	return nil
}
