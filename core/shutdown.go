package core

import (
	"context"
)

// ShutdownFunc is a cleanup step run during graceful shutdown.
// The context carries the remaining shutdown budget. Implementations must
// be idempotent because both the signal path and deferred cleanup in main
// may reach them.
type ShutdownFunc func(ctx context.Context) error
