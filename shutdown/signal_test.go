package shutdown

import (
	"os"
	"syscall"
	"testing"
)

func TestSignalCounter(t *testing.T) {
	forced := 0
	counter := NewSignalCounter(2, func() { forced++ })

	if got := counter.First(); got != nil {
		t.Errorf("First() before any signal = %v", got)
	}

	if n := counter.Increment(syscall.SIGTERM); n != 1 {
		t.Errorf("first Increment() = %d", n)
	}
	if forced != 0 {
		t.Error("force callback ran on first signal")
	}

	counter.Increment(os.Interrupt)
	if forced != 1 {
		t.Errorf("force callback ran %d times, want 1", forced)
	}
	if counter.First() != syscall.SIGTERM {
		t.Errorf("First() = %v, want SIGTERM", counter.First())
	}
	if counter.Count() != 2 {
		t.Errorf("Count() = %d, want 2", counter.Count())
	}
}

func TestSignalCounter_NilCallback(t *testing.T) {
	counter := NewSignalCounter(1, nil)
	counter.Increment(os.Interrupt)
	counter.Increment(os.Interrupt)
	if counter.Count() != 2 {
		t.Errorf("Count() = %d, want 2", counter.Count())
	}
}
