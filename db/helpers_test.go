package db

import (
	"context"
	"path/filepath"
	"testing"
)

// openTestDB opens a migrated database in a temp dir.
func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func sampleRecord(requestID string) GenerationRecord {
	return GenerationRecord{
		RequestID: requestID,
		Model:     "sd15",
		Prompt:    "a cat",
		Sampler:   "Euler a",
		Width:     512,
		Height:    512,
		Steps:     25,
		CFGScale:  7,
		BatchSize: 2,
		Seeds:     []int64{42, 43},
		ImageIDs:  []string{"a", "b"},
		Status:    StatusSuccess,
	}
}
