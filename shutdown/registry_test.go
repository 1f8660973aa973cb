package shutdown

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestShutdownRegistry_Order(t *testing.T) {
	registry := NewShutdownRegistry()
	var ran []string
	step := func(name string) func(context.Context) error {
		return func(context.Context) error {
			ran = append(ran, name)
			return nil
		}
	}

	// Registered out of order on purpose.
	registry.Register("logger", PriorityLogger, step("logger"))
	registry.Register("database", PriorityDatabase, step("database"))
	registry.Register("http", PriorityHTTPServer, step("http"))
	registry.Register("temp-files", PriorityTempFiles, step("temp-files"))
	registry.Register("writer", PriorityWriter, step("writer"))
	registry.Register("cron", PriorityScheduler, step("cron"))
	registry.Register("events", PriorityEventHub, step("events"))
	registry.Register("gpu", PriorityScheduler, step("gpu"))

	want := []string{"http", "events", "cron", "gpu", "writer", "database", "temp-files", "logger"}
	if got := registry.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	results := registry.Shutdown(context.Background())
	if !reflect.DeepEqual(ran, want) {
		t.Errorf("ran %v, want %v", ran, want)
	}
	if len(results) != len(want) {
		t.Errorf("got %d results, want %d", len(results), len(want))
	}

	if again := registry.Shutdown(context.Background()); again != nil {
		t.Errorf("second Shutdown() = %v, want nil", again)
	}
	registry.Register("late", 0, step("late"))
	if registry.Count() != len(want) {
		t.Error("Register after Shutdown was not ignored")
	}
}

func TestShutdownRegistry_ContinuesAfterFailure(t *testing.T) {
	registry := NewShutdownRegistry()
	boom := errors.New("boom")
	secondRan := false

	registry.Register("first", 1, func(context.Context) error { return boom })
	registry.Register("second", 2, func(context.Context) error {
		secondRan = true
		return nil
	})

	results := registry.Shutdown(context.Background())
	if !secondRan {
		t.Error("second step did not run after first failed")
	}
	if !errors.Is(results[0].Err, boom) || results[0].Name != "first" {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].Err != nil {
		t.Errorf("second result = %+v", results[1])
	}
}
