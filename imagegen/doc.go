// Package imagegen runs generation requests end to end and owns the
// on-disk image contract.
//
// A request flows through:
//
//	GenerationParameters
//	  -> catalog lookup           (ErrNotFound)
//	  -> sdruntime.PipelineCache  (ErrLoadFailed)
//	  -> sdruntime.PlanSeeds
//	  -> Pipeline.Generate        (ErrInference), one call per batch
//	  -> Store.Persist per image  (ErrIO)
//	  -> []GeneratedImage
//
// Every error from Processor.Generate wraps ErrGenerationFailed together
// with one kind sentinel, so callers map errors with errors.Is.
package imagegen
