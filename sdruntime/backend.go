package sdruntime

import (
	"context"
	"image"
)

// Backend constructs models. Implementations must be safe for concurrent
// Load calls on different paths.
type Backend interface {
	Load(ctx context.Context, opts LoadOptions) (Model, error)
}

// Model is a loaded diffusion model. Generate is called with the owning
// Pipeline's mutex held and must return one image per seed, in order.
type Model interface {
	Generate(ctx context.Context, req BatchRequest) ([]image.Image, error)
	Close() error
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, opts LoadOptions) (Model, error)

func (f BackendFunc) Load(ctx context.Context, opts LoadOptions) (Model, error) {
	return f(ctx, opts)
}
