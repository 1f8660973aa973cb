package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearConfigEnv blanks every variable LoadConfig reads so tests start from defaults.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MODELS_DIR", "OUTPUT_DIR", "THUMB_SIZE", "HOST", "PORT", "CORS_ORIGINS",
		"DEV_MODE", "LOG_LEVEL", "LOG_FILE", "SD_DEVICE", "SD_MAX_CONCURRENT",
		"DB_PATH", "HISTORY_RETENTION_DAYS", "HISTORY_CLEANUP_SCHEDULE", "SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.ModelsDir != filepath.Clean(DefaultModelsDir) {
		t.Errorf("ModelsDir = %q", cfg.ModelsDir)
	}
	if cfg.OutputDir != filepath.Clean(DefaultOutputDir) {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.ThumbSize != (Size{300, 300}) {
		t.Errorf("ThumbSize = %v, want 300x300", cfg.ThumbSize)
	}
	if cfg.Addr() != "0.0.0.0:8000" {
		t.Errorf("Addr() = %q, want 0.0.0.0:8000", cfg.Addr())
	}
	if cfg.Device != DeviceAuto {
		t.Errorf("Device = %q, want auto", cfg.Device)
	}
	if cfg.MaxConcurrent != 1 {
		t.Errorf("MaxConcurrent = %d, want 1", cfg.MaxConcurrent)
	}
	if cfg.ShutdownTimeout != 60*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 60s", cfg.ShutdownTimeout)
	}
	if cfg.HistoryCleanupSpec != "@daily" {
		t.Errorf("HistoryCleanupSpec = %q", cfg.HistoryCleanupSpec)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if filepath.Base(cfg.DBPath) != "history.db" {
		t.Errorf("DBPath = %q, want history.db in data dir", cfg.DBPath)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("MODELS_DIR", "/srv/models/")
	t.Setenv("OUTPUT_DIR", "/srv/out")
	t.Setenv("THUMB_SIZE", "128x64")
	t.Setenv("PORT", "9000")
	t.Setenv("SD_DEVICE", "CPU")
	t.Setenv("SD_MAX_CONCURRENT", "2")
	t.Setenv("DB_PATH", "/tmp/h.db")
	t.Setenv("DEV_MODE", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.ModelsDir != "/srv/models" {
		t.Errorf("ModelsDir = %q, want cleaned path", cfg.ModelsDir)
	}
	if cfg.ImagesDir() != filepath.Join("/srv/out", "images") {
		t.Errorf("ImagesDir() = %q", cfg.ImagesDir())
	}
	if cfg.ThumbnailsDir() != filepath.Join("/srv/out", "thumbnails") {
		t.Errorf("ThumbnailsDir() = %q", cfg.ThumbnailsDir())
	}
	if cfg.ThumbSize != (Size{128, 64}) {
		t.Errorf("ThumbSize = %v", cfg.ThumbSize)
	}
	if cfg.Port != 9000 || cfg.Device != DeviceCPU || cfg.MaxConcurrent != 2 {
		t.Errorf("unexpected config: port=%d device=%q max=%d", cfg.Port, cfg.Device, cfg.MaxConcurrent)
	}
	if cfg.DBPath != "/tmp/h.db" || !cfg.DevMode {
		t.Errorf("DBPath = %q DevMode = %v", cfg.DBPath, cfg.DevMode)
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown device", "SD_DEVICE", "tpu"},
		{"zero concurrency", "SD_MAX_CONCURRENT", "0"},
		{"too much concurrency", "SD_MAX_CONCURRENT", "9"},
		{"port out of range", "PORT", "70000"},
		{"negative retention", "HISTORY_RETENTION_DAYS", "-1"},
		{"malformed thumb size", "THUMB_SIZE", "big"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			if err == nil {
				t.Fatalf("LoadConfig() with %s=%s should fail", tt.key, tt.value)
			}
			if code := GetErrorCode(err); code != ErrCodeInvalidValue {
				t.Errorf("error code = %q, want %q", code, ErrCodeInvalidValue)
			}
		})
	}
}

func TestEnsureOutputDirs(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{OutputDir: filepath.Join(root, "outputs")}

	if err := cfg.EnsureOutputDirs(); err != nil {
		t.Fatalf("EnsureOutputDirs() error = %v", err)
	}
	for _, dir := range []string{cfg.ImagesDir(), cfg.ThumbnailsDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s was not created", dir)
		}
	}
}

func TestEnsureOutputDirs_Unusable(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "outputs")
	if err := os.WriteFile(blocker, []byte("file, not dir"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{OutputDir: blocker}
	err := cfg.EnsureOutputDirs()
	if code := GetErrorCode(err); code != ErrCodeDirectoryUnusable {
		t.Errorf("error code = %q, want %q", code, ErrCodeDirectoryUnusable)
	}
}
