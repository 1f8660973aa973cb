package imagegen

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"sd_backend/sdruntime"
)

// Parameter defaults applied by DefaultParameters.
const (
	DefaultWidth     = 512
	DefaultHeight    = 512
	DefaultSteps     = 25
	DefaultCFGScale  = 7.0
	DefaultBatchSize = 1
)

// LoraSpec names a LoRA and the weight it should be blended at.
type LoraSpec struct {
	Model  string  `json:"model"`
	Weight float64 `json:"weight"`
}

// GenerationParameters is a generation request as clients send it. An
// absent negative prompt is the empty string, and is recorded as "".
type GenerationParameters struct {
	Prompt         string     `json:"prompt"`
	NegativePrompt string     `json:"negativePrompt"`
	Model          string     `json:"model"`
	Width          int        `json:"width"`
	Height         int        `json:"height"`
	Steps          int        `json:"steps"`
	CFGScale       float64    `json:"cfgScale"`
	Sampler        string     `json:"sampler"`
	Seed           *int64     `json:"seed"`
	BatchSize      int        `json:"batchSize"`
	EnabledLoras   []LoraSpec `json:"enabledLoras"`
}

// DefaultParameters returns parameters with every optional field at its
// default. Decoding a request body into this value leaves absent fields at
// their defaults.
func DefaultParameters() GenerationParameters {
	return GenerationParameters{
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		Steps:     DefaultSteps,
		CFGScale:  DefaultCFGScale,
		Sampler:   sdruntime.DefaultSamplerName,
		BatchSize: DefaultBatchSize,
	}
}

// Validate checks the parameters against what the inference backend
// accepts. Errors wrap ErrInvalidParams.
func (p GenerationParameters) Validate() error {
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidParams)
	}
	if n := utf8.RuneCountInString(p.Prompt); n > sdruntime.MaxPromptLength {
		return fmt.Errorf("%w: prompt is %d characters, maximum is %d", ErrInvalidParams, n, sdruntime.MaxPromptLength)
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidParams)
	}
	if err := validateDimension("width", p.Width); err != nil {
		return err
	}
	if err := validateDimension("height", p.Height); err != nil {
		return err
	}
	if p.Steps < sdruntime.MinSteps || p.Steps > sdruntime.MaxSteps {
		return fmt.Errorf("%w: steps must be between %d and %d, got %d",
			ErrInvalidParams, sdruntime.MinSteps, sdruntime.MaxSteps, p.Steps)
	}
	if math.IsNaN(p.CFGScale) || p.CFGScale < sdruntime.MinCFGScale || p.CFGScale > sdruntime.MaxCFGScale {
		return fmt.Errorf("%w: cfgScale must be between %g and %g, got %g",
			ErrInvalidParams, sdruntime.MinCFGScale, sdruntime.MaxCFGScale, p.CFGScale)
	}
	if p.BatchSize < 1 || p.BatchSize > sdruntime.MaxBatchSize {
		return fmt.Errorf("%w: batchSize must be between 1 and %d, got %d",
			ErrInvalidParams, sdruntime.MaxBatchSize, p.BatchSize)
	}
	if p.Seed != nil && *p.Seed > math.MaxInt64-int64(p.BatchSize-1) {
		return fmt.Errorf("%w: seed %d overflows for a batch of %d", ErrInvalidParams, *p.Seed, p.BatchSize)
	}
	for i, lora := range p.EnabledLoras {
		if strings.TrimSpace(lora.Model) == "" {
			return fmt.Errorf("%w: enabledLoras[%d] has no model", ErrInvalidParams, i)
		}
		if math.IsNaN(lora.Weight) || math.IsInf(lora.Weight, 0) {
			return fmt.Errorf("%w: enabledLoras[%d] weight must be finite", ErrInvalidParams, i)
		}
	}
	return nil
}

func validateDimension(name string, v int) error {
	if v < sdruntime.MinImageSize || v > sdruntime.MaxImageSize {
		return fmt.Errorf("%w: %s must be between %d and %d, got %d",
			ErrInvalidParams, name, sdruntime.MinImageSize, sdruntime.MaxImageSize, v)
	}
	if v%sdruntime.ImageSizeMultiple != 0 {
		return fmt.Errorf("%w: %s must be divisible by %d, got %d",
			ErrInvalidParams, name, sdruntime.ImageSizeMultiple, v)
	}
	return nil
}

// GeneratedImage is one persisted image. It is also the exact content of
// the image's JSON sidecar.
type GeneratedImage struct {
	ID             string               `json:"id"`
	URL            string               `json:"url"`
	Prompt         string               `json:"prompt"`
	NegativePrompt string               `json:"negativePrompt"`
	Parameters     GenerationParameters `json:"parameters"`
	Seed           int64                `json:"seed"`
	Timestamp      int64                `json:"timestamp"`
}

// ImageURL is the public path of a full-resolution image.
func ImageURL(id string) string {
	return "/outputs/images/" + id + ".png"
}

// ThumbnailURL is the public path of an image's thumbnail.
func ThumbnailURL(id string) string {
	return "/outputs/thumbnails/" + id + ".png"
}
