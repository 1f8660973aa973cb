package sdruntime

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Device is the compute device inference runs on.
type Device string

const (
	DeviceCUDA Device = "cuda"
	DeviceCPU  Device = "cpu"
)

// Accelerated reports whether the device is a GPU.
func (d Device) Accelerated() bool {
	return d == DeviceCUDA
}

// cudaProbe is replaced in tests.
var cudaProbe = probeCUDA

// ResolveDevice maps an SD_DEVICE value to a concrete device. "auto" picks
// CUDA when a GPU is visible and falls back to CPU. "cuda" without a GPU is
// an error rather than a silent downgrade.
func ResolveDevice(requested string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case "", "auto":
		if cudaProbe() {
			return DeviceCUDA, nil
		}
		return DeviceCPU, nil
	case "cuda":
		if !cudaProbe() {
			return "", fmt.Errorf("%w: no NVIDIA GPU detected by nvidia-smi", ErrCUDANotAvailable)
		}
		return DeviceCUDA, nil
	case "cpu":
		return DeviceCPU, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDevice, requested)
	}
}

// probeCUDA lists GPUs with nvidia-smi. A missing binary or empty list
// means no CUDA device.
func probeCUDA() bool {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-L").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "GPU ")
}
