package core

import (
	"context"
	"errors"
	"testing"
)

func TestShutdownFunc_ReceivesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "budget")

	var got any
	var fn ShutdownFunc = func(ctx context.Context) error {
		got = ctx.Value(key{})
		return errors.New("close failed")
	}

	if err := fn(ctx); err == nil || err.Error() != "close failed" {
		t.Errorf("ShutdownFunc error = %v", err)
	}
	if got != "budget" {
		t.Errorf("ShutdownFunc did not receive the context")
	}
}
