package validation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckModelsDir(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"checkpoints", "vaes"} {
		if err := os.Mkdir(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}

	present, err := CheckModelsDir(root)
	if err != nil {
		t.Fatalf("CheckModelsDir() error = %v", err)
	}
	if len(present) != 2 || present[0] != "checkpoints" || present[1] != "vaes" {
		t.Errorf("present = %v, want [checkpoints vaes]", present)
	}
}

func TestCheckModelsDir_Errors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "models")
	os.WriteFile(file, []byte("x"), 0644)

	if _, err := CheckModelsDir(filepath.Join(root, "missing")); err == nil {
		t.Error("missing dir should fail")
	}
	if _, err := CheckModelsDir(file); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("file path error = %v, want ErrNotDirectory", err)
	}
}

func TestCheckDirWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outputs", "images")

	if err := CheckDirWritable(dir); err != nil {
		t.Fatalf("CheckDirWritable() error = %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}
