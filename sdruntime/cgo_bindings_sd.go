//go:build sd && cgo && !stub

// Native implementation of the stable-diffusion.cpp binding.
// Build with: CGO_ENABLED=1 go build -tags sd
//
// Prerequisites:
//   1. stable-diffusion.cpp compiled as a shared library
//   2. CGO_CFLAGS including the header path: -I/path/to/stable-diffusion.cpp
//   3. CGO_LDFLAGS linking the library: -L/path/to/build -lstable-diffusion
//
// The sdb_* shims below isolate the Go side from upstream signature churn.
// Their bodies call into stable-diffusion.h; until the header is vendored
// they are declared against placeholder types and return NULL, which
// surfaces as ErrModelLoadFailed.

package sdruntime

/*
#cgo CFLAGS: -I${SRCDIR}/../vendor/stable-diffusion.cpp
#cgo LDFLAGS: -L${SRCDIR}/../vendor/stable-diffusion.cpp/build -lstable-diffusion

#include <stdlib.h>
#include <stdint.h>

// #include <stable-diffusion.h>
typedef struct sd_ctx_t sd_ctx_t;

typedef struct {
	uint32_t width;
	uint32_t height;
	uint32_t channel;
	uint8_t* data;
} sdb_image_t;

// sd_ctx_t* ctx = new_sd_ctx(model_path, "", "", "", "", "", "", "", "", "", "",
//     false, false, true, n_threads, fp16 ? SD_TYPE_F16 : SD_TYPE_F32,
//     CUDA_RNG, DEFAULT, !gpu, false, !gpu, flash_attn);
static sd_ctx_t* sdb_new_ctx(const char* model_path, int n_threads, int fp16, int gpu, int flash_attn) {
	return NULL;
}

// return txt2img(ctx, prompt, negative_prompt, -1, cfg_scale, 3.5f, width, height,
//     (enum sample_method_t)method, steps, seed, 1, NULL, 0.9f, 20.f, false, "");
// with the scheduler selected via the schedule argument of new_sd_ctx.
static sdb_image_t* sdb_txt2img(sd_ctx_t* ctx, const char* prompt, const char* negative_prompt,
		float cfg_scale, int width, int height, int method, int schedule, int steps, int64_t seed) {
	return NULL;
}

static void sdb_free_image(sdb_image_t* img) {
	if (img != NULL) {
		free(img->data);
		free(img);
	}
}

// free_sd_ctx(ctx);
static void sdb_free_ctx(sd_ctx_t* ctx) {}

// return sd_get_system_info();
static const char* sdb_system_info() {
	return "stable-diffusion.cpp";
}
*/
import "C"

import (
	"fmt"
	"image"
	"runtime"
	"unsafe"
)

// modelHandle owns a native sd_ctx_t.
type modelHandle struct {
	ctx  *C.sd_ctx_t
	opts LoadOptions
}

func loadModelImpl(opts LoadOptions) (*modelHandle, error) {
	cPath := C.CString(opts.Path)
	defer C.free(unsafe.Pointer(cPath))

	ctx := C.sdb_new_ctx(cPath,
		C.int(runtime.NumCPU()),
		cBool(opts.Precision == PrecisionFP16),
		cBool(opts.Device.Accelerated()),
		cBool(opts.MemoryEfficientAttention))
	if ctx == nil {
		return nil, fmt.Errorf("%w: stable-diffusion.cpp returned a null context for %s", ErrModelLoadFailed, opts.Path)
	}

	return &modelHandle{ctx: ctx, opts: opts}, nil
}

func generateImageImpl(h *modelHandle, req BatchRequest, seed int64) (image.Image, error) {
	if h == nil || h.ctx == nil {
		return nil, fmt.Errorf("%w: model handle is nil", ErrGenerationFailed)
	}

	cPrompt := C.CString(req.Prompt)
	defer C.free(unsafe.Pointer(cPrompt))
	cNegPrompt := C.CString(req.NegativePrompt)
	defer C.free(unsafe.Pointer(cNegPrompt))

	method, schedule := nativeSampler(req.Scheduler)

	out := C.sdb_txt2img(h.ctx, cPrompt, cNegPrompt,
		C.float(req.CFGScale),
		C.int(req.Width), C.int(req.Height),
		C.int(method), C.int(schedule),
		C.int(req.Steps), C.int64_t(seed))
	if out == nil || out.data == nil {
		return nil, fmt.Errorf("%w: txt2img returned no image for seed %d", ErrGenerationFailed, seed)
	}
	defer C.sdb_free_image(out)

	w, ht, ch := int(out.width), int(out.height), int(out.channel)
	pixels := C.GoBytes(unsafe.Pointer(out.data), C.int(w*ht*ch))

	img, err := PixelsToImage(pixels, w, ht, ch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return img, nil
}

func freeModelImpl(h *modelHandle) {
	if h == nil || h.ctx == nil {
		return
	}
	C.sdb_free_ctx(h.ctx)
	h.ctx = nil
}

func getBackendInfoImpl() string {
	return C.GoString(C.sdb_system_info())
}

func cBool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}
