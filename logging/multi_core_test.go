package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewMultiCore_CreatesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	core, err := NewMultiCore(zapcore.InfoLevel, logPath, false)
	if err != nil {
		t.Fatalf("NewMultiCore() error: %v", err)
	}
	if core == nil {
		t.Fatal("NewMultiCore() returned nil core")
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestNewMultiCoreWithWriters(t *testing.T) {
	tests := []struct {
		name            string
		isDev           bool
		wantConsoleJSON bool
	}{
		{"development console is text", true, false},
		{"production console is JSON", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var consoleBuf, fileBuf bytes.Buffer
			core := NewMultiCoreWithWriters(zapcore.InfoLevel,
				zapcore.AddSync(&consoleBuf), zapcore.AddSync(&fileBuf), tt.isDev)

			zap.New(core).Info("test message", zap.String("key", "value"))

			var fileJSON map[string]interface{}
			if err := json.Unmarshal(bytes.TrimSpace(fileBuf.Bytes()), &fileJSON); err != nil {
				t.Fatalf("file output is not JSON: %s", fileBuf.String())
			}
			if fileJSON[FieldMessage] != "test message" {
				t.Errorf("file %s = %v", FieldMessage, fileJSON[FieldMessage])
			}

			var consoleJSON map[string]interface{}
			isJSON := json.Unmarshal(bytes.TrimSpace(consoleBuf.Bytes()), &consoleJSON) == nil
			if isJSON != tt.wantConsoleJSON {
				t.Errorf("console JSON = %v, want %v: %s", isJSON, tt.wantConsoleJSON, consoleBuf.String())
			}
		})
	}
}

func TestNewMultiCoreWithWriters_LevelFiltering(t *testing.T) {
	var consoleBuf, fileBuf bytes.Buffer
	core := NewMultiCoreWithWriters(zapcore.WarnLevel,
		zapcore.AddSync(&consoleBuf), zapcore.AddSync(&fileBuf), false)

	logger := zap.New(core)
	logger.Info("filtered")
	logger.Warn("kept")

	for name, out := range map[string]string{"console": consoleBuf.String(), "file": fileBuf.String()} {
		if strings.Contains(out, "filtered") {
			t.Errorf("%s output contains info entry", name)
		}
		if !strings.Contains(out, "kept") {
			t.Errorf("%s output missing warn entry", name)
		}
	}
}
