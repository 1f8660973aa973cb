// Package sdruntime runs Stable Diffusion inference for the image service.
//
// The package is organized around three pieces:
//
//   - Backend and Model: the inference black box. NativeBackend binds
//     stable-diffusion.cpp when built with the "sd" tag and is a stub
//     otherwise.
//   - Pipeline: one loaded model plus its mutable scheduler. Generate holds
//     the pipeline mutex across "apply scheduler + run inference", so
//     concurrent requests with different samplers never interleave.
//   - PipelineCache: maps a model path to its Pipeline. Loads are
//     deduplicated with singleflight, failures are not cached and nothing
//     is evicted.
//
// Pure helpers live alongside: SelectScheduler maps a Sampler to a
// scheduler configuration and PlanSeeds derives per-image seeds.
//
// # Quick Start
//
//	cache := sdruntime.NewPipelineCache(sdruntime.NativeBackend{}, sdruntime.DeviceCUDA, logger)
//	defer cache.Close()
//
//	pipe, err := cache.Resolve(ctx, "/models/checkpoints/sd15.safetensors")
//	if err != nil {
//	    return err
//	}
//	images, err := pipe.Generate(ctx, sdruntime.SamplerEulerAncestral, sdruntime.BatchRequest{
//	    Prompt: "a cat",
//	    Width:  512, Height: 512, Steps: 25, CFGScale: 7,
//	    Seeds:  sdruntime.PlanSeeds(2, nil),
//	})
//
// # Build Tags
//
//   - Stub mode (default): go build
//     Loads validate the model path; generation fails with ErrGenerationFailed.
//   - Native mode: CGO_ENABLED=1 go build -tags sd
//     Requires stable-diffusion.cpp built as a shared library.
//
// # Error Handling
//
//   - ErrModelNotFound: model file does not exist
//   - ErrModelLoadFailed: backend could not construct the model
//   - ErrGenerationFailed: inference failed or returned the wrong image count
//   - ErrInvalidParams: batch request outside backend limits
//   - ErrCUDANotAvailable: SD_DEVICE=cuda without a usable GPU
//   - ErrCacheClosed: cache used after Close
package sdruntime
