package core

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGetDataDirectory_PlatformAppropriate(t *testing.T) {
	dir := GetDataDirectory()
	if dir == "" {
		t.Fatal("GetDataDirectory() returned empty string")
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(dir, AppName) {
			t.Errorf("Windows path %q should contain %q", dir, AppName)
		}
	default:
		if !strings.HasSuffix(dir, ".sdbackend") {
			t.Errorf("Unix path %q should end with .sdbackend", dir)
		}
	}
}

func TestGetDataFilePath_JoinsCorrectly(t *testing.T) {
	path := GetDataFilePath("history.db")

	expectedSuffix := filepath.Join(filepath.Base(GetDataDirectory()), "history.db")
	if !strings.HasSuffix(path, expectedSuffix) {
		t.Errorf("GetDataFilePath() = %q, should end with %q", path, expectedSuffix)
	}
}
