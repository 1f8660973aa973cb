package sdruntime

import (
	"errors"
	"testing"
)

func withCUDA(t *testing.T, available bool) {
	t.Helper()
	orig := cudaProbe
	cudaProbe = func() bool { return available }
	t.Cleanup(func() { cudaProbe = orig })
}

func TestResolveDevice(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		gpu       bool
		want      Device
		wantErr   error
	}{
		{"auto with gpu", "auto", true, DeviceCUDA, nil},
		{"auto without gpu", "auto", false, DeviceCPU, nil},
		{"empty is auto", "", true, DeviceCUDA, nil},
		{"cuda with gpu", "CUDA", true, DeviceCUDA, nil},
		{"cuda without gpu", "cuda", false, "", ErrCUDANotAvailable},
		{"cpu ignores gpu", "cpu", true, DeviceCPU, nil},
		{"unknown", "tpu", true, "", ErrUnknownDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withCUDA(t, tt.gpu)

			got, err := ResolveDevice(tt.requested)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ResolveDevice() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveDevice() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveDevice() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDevice_Accelerated(t *testing.T) {
	if !DeviceCUDA.Accelerated() || DeviceCPU.Accelerated() {
		t.Error("only CUDA should report as accelerated")
	}
}
