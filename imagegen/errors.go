package imagegen

import (
	"context"
	"errors"
	"fmt"

	"sd_backend/catalog"
	"sd_backend/sdruntime"
)

// ErrGenerationFailed wraps every error returned by Processor.Generate.
// The wrapped error also matches exactly one of the kind sentinels below.
var ErrGenerationFailed = errors.New("imagegen: image generation failed")

// Error kinds
var (
	ErrNotFound      = errors.New("imagegen: not found")
	ErrLoadFailed    = errors.New("imagegen: model load failed")
	ErrInference     = errors.New("imagegen: inference failed")
	ErrIO            = errors.New("imagegen: storage i/o failed")
	ErrInvalidParams = errors.New("imagegen: invalid parameters")
)

// Kind names used in logs and history rows.
const (
	KindNotFound      = "not_found"
	KindLoadError     = "load_error"
	KindInference     = "inference_error"
	KindIO            = "io_error"
	KindInvalidParams = "invalid_params"
	KindCanceled      = "canceled"
	KindUnknown       = "unknown"
)

// classify attaches the matching kind sentinel to err. Errors that already
// carry a kind are returned unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLoadFailed), errors.Is(err, ErrInference),
		errors.Is(err, ErrIO), errors.Is(err, ErrInvalidParams):
		return err
	case errors.Is(err, catalog.ErrModelNotFound), errors.Is(err, sdruntime.ErrModelNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, sdruntime.ErrModelLoadFailed), errors.Is(err, sdruntime.ErrCacheClosed):
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	case errors.Is(err, sdruntime.ErrInvalidParams):
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	case errors.Is(err, sdruntime.ErrGenerationFailed):
		return fmt.Errorf("%w: %w", ErrInference, err)
	default:
		return err
	}
}

// wrapFailure classifies err and wraps it in ErrGenerationFailed.
func wrapFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrGenerationFailed, classify(err))
}

// Kind returns the kind name for err.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParams):
		return KindInvalidParams
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrLoadFailed):
		return KindLoadError
	case errors.Is(err, ErrInference):
		return KindInference
	case errors.Is(err, ErrIO):
		return KindIO
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}
