package validation

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sd_backend/core"
)

func testConfig(t *testing.T) *core.Config {
	t.Helper()
	root := t.TempDir()
	models := filepath.Join(root, "models")
	if err := os.MkdirAll(filepath.Join(models, "checkpoints"), 0755); err != nil {
		t.Fatal(err)
	}
	return &core.Config{
		ModelsDir: models,
		OutputDir: filepath.Join(root, "outputs"),
		Device:    core.DeviceAuto,
	}
}

func fixedDevice(resolved string, err error) DeviceResolver {
	return func(string) (string, error) { return resolved, err }
}

func TestValidationSuite_AllPass(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device = core.DeviceCUDA

	var buf bytes.Buffer
	result := NewValidationSuite(cfg).
		WithOutput(&buf).
		WithShowProgress(false).
		WithMinFreeBytes(0).
		WithDeviceResolver(fixedDevice(core.DeviceCUDA, nil)).
		Validate()

	if !result.Success {
		t.Fatalf("Validate() failed: %v", result.GetErrors())
	}
	if result.PassedSteps != 4 {
		t.Errorf("PassedSteps = %d, want 4", result.PassedSteps)
	}
	if _, err := os.Stat(cfg.ThumbnailsDir()); err != nil {
		t.Errorf("output check should create thumbnails dir: %v", err)
	}
}

func TestValidationSuite_MissingModelsDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.ModelsDir = filepath.Join(t.TempDir(), "absent")

	result := NewValidationSuite(cfg).
		WithShowProgress(false).
		WithMinFreeBytes(0).
		Validate()

	if result.Success {
		t.Fatal("Validate() should fail when models dir is missing")
	}
	if result.Steps[0].Status != StepFailed {
		t.Errorf("Models Directory status = %v, want failed", result.Steps[0].Status)
	}
}

func TestValidationSuite_FailFast(t *testing.T) {
	cfg := testConfig(t)
	cfg.ModelsDir = filepath.Join(t.TempDir(), "absent")

	result := NewValidationSuite(cfg).
		WithShowProgress(false).
		WithFailFast(true).
		Validate()

	if result.TotalSteps != 1 {
		t.Errorf("FailFast should stop after first failure, got %d steps", result.TotalSteps)
	}
}

func TestValidationSuite_Warnings(t *testing.T) {
	cfg := testConfig(t)
	os.Remove(filepath.Join(cfg.ModelsDir, "checkpoints"))

	result := NewValidationSuite(cfg).
		WithShowProgress(false).
		WithMinFreeBytes(0).
		WithDeviceResolver(fixedDevice(core.DeviceCPU, nil)).
		Validate()

	if !result.Success {
		t.Fatalf("warnings should not fail the suite: %v", result.GetErrors())
	}
	if result.Warnings != 2 {
		t.Errorf("Warnings = %d, want 2 (empty models tree, CPU fallback)", result.Warnings)
	}
}

func TestValidationSuite_DeviceError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device = core.DeviceCUDA
	deviceErr := errors.New("no CUDA device available")

	result := NewValidationSuite(cfg).
		WithShowProgress(false).
		WithMinFreeBytes(0).
		WithDeviceResolver(fixedDevice("", deviceErr)).
		Validate()

	if result.Success {
		t.Fatal("Validate() should fail when the requested device is unavailable")
	}
	if !errors.Is(result.GetFirstError(), deviceErr) {
		t.Errorf("GetFirstError() = %v, want device error", result.GetFirstError())
	}
}

func TestValidationSuite_InsufficientDiskSpace(t *testing.T) {
	cfg := testConfig(t)

	result := NewValidationSuite(cfg).
		WithShowProgress(false).
		WithMinFreeBytes(math.MaxInt64).
		Validate()

	var diskErr *DiskSpaceError
	if !errors.As(result.GetFirstError(), &diskErr) {
		t.Fatalf("expected DiskSpaceError, got %v", result.GetFirstError())
	}
}

func TestValidationSuite_SkipsWithoutResolver(t *testing.T) {
	result := NewValidationSuite(testConfig(t)).
		WithShowProgress(false).
		WithMinFreeBytes(0).
		Validate()

	last := result.Steps[len(result.Steps)-1]
	if last.Name != "Compute Device" || last.Status != StepSkipped {
		t.Errorf("last step = %s/%v, want skipped Compute Device", last.Name, last.Status)
	}
}

func TestValidationSuite_ProgressOutput(t *testing.T) {
	var buf bytes.Buffer
	NewValidationSuite(testConfig(t)).
		WithOutput(&buf).
		WithMinFreeBytes(0).
		Validate()

	output := buf.String()
	for _, want := range []string{"Startup Validation", "Models Directory", "Output Directory", "Validation Passed"} {
		if !strings.Contains(output, want) {
			t.Errorf("progress output missing %q:\n%s", want, output)
		}
	}
}

func TestStepStatus_String(t *testing.T) {
	tests := []struct {
		status   StepStatus
		expected string
	}{
		{StepPending, "pending"},
		{StepRunning, "running"},
		{StepPassed, "passed"},
		{StepFailed, "failed"},
		{StepWarning, "warning"},
		{StepSkipped, "skipped"},
		{StepStatus(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.status.String(); got != tt.expected {
				t.Errorf("StepStatus(%d).String() = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestSuiteResult_Summary(t *testing.T) {
	result := SuiteResult{
		Success:     false,
		TotalSteps:  4,
		PassedSteps: 2,
		FailedSteps: 1,
		Warnings:    1,
		Duration:    1500 * time.Millisecond,
	}

	summary := result.Summary()
	for _, want := range []string{"Failed", "2/4", "1 failed", "1 warning"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary() = %q, missing %q", summary, want)
		}
	}
}
