//go:build !sd || stub

package sdruntime

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestNativeBackend_StubLoad(t *testing.T) {
	path := writeModelFile(t, "sd15.safetensors")

	model, err := NativeBackend{}.Load(context.Background(), LoadOptionsFor(path, DeviceCPU))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	defer model.Close()

	_, err = model.Generate(context.Background(), validBatch(1))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("stub Generate() error = %v, want ErrGenerationFailed", err)
	}
}

func TestNativeBackend_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NativeBackend{}.Load(context.Background(), LoadOptions{Path: filepath.Join(dir, "missing.ckpt")})
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("missing file error = %v, want ErrModelNotFound", err)
	}

	_, err = NativeBackend{}.Load(context.Background(), LoadOptions{Path: dir})
	if !errors.Is(err, ErrModelLoadFailed) {
		t.Errorf("directory error = %v, want ErrModelLoadFailed", err)
	}
}

func TestNativeModel_GenerateAfterClose(t *testing.T) {
	path := writeModelFile(t, "sd15.safetensors")
	model, err := NativeBackend{}.Load(context.Background(), LoadOptions{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	model.Close()
	model.Close()

	if _, err := model.Generate(context.Background(), validBatch(1)); !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("Generate() after Close = %v", err)
	}
}

func TestBackendInfo_Stub(t *testing.T) {
	if !strings.Contains(BackendInfo(), "stub") {
		t.Errorf("BackendInfo() = %q, want stub description", BackendInfo())
	}
}

func TestNativeSampler(t *testing.T) {
	tests := []struct {
		sampler      Sampler
		wantMethod   int
		wantSchedule int
	}{
		{SamplerDPMPP2MKarras, sdSampleDPMPP2M, sdScheduleKarras},
		{SamplerEulerAncestral, sdSampleEulerA, sdScheduleDefault},
		{SamplerEuler, sdSampleEuler, sdScheduleDefault},
		{SamplerLMS, sdSampleIPNDM, sdScheduleDefault},
		{SamplerDDIM, sdSampleDDIMTrailing, sdScheduleDefault},
		{SamplerDefault, sdSampleEulerA, sdScheduleDefault},
	}

	for _, tt := range tests {
		t.Run(tt.sampler.String(), func(t *testing.T) {
			method, schedule := nativeSampler(SelectScheduler(tt.sampler, DefaultSchedulerConfig()))
			if method != tt.wantMethod || schedule != tt.wantSchedule {
				t.Errorf("nativeSampler() = %d/%d, want %d/%d", method, schedule, tt.wantMethod, tt.wantSchedule)
			}
		})
	}
}
